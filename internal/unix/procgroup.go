//go:build linux || darwin

// Package unix provides process group control for supervised children.
package unix

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Setpgid places the child in its own process group so that signals reach
// any processes it spawns.
func Setpgid(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// Terminate sends SIGTERM to the process group led by pid
func Terminate(pid int) error {
	return signalGroup(pid, unix.SIGTERM)
}

// Kill sends SIGKILL to the process group led by pid
func Kill(pid int) error {
	return signalGroup(pid, unix.SIGKILL)
}

func signalGroup(pid int, sig unix.Signal) error {
	if pid <= 0 {
		return unix.EINVAL
	}
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		// Group already gone; fall back to the leader in case it never got its own group.
		err = unix.Kill(pid, sig)
	}
	return err
}

// IsGone reports whether err means the target process no longer exists
func IsGone(err error) bool {
	return errors.Is(err, unix.ESRCH)
}
