//go:build !linux && !darwin

// Package unix provides process group control for supervised children.
package unix

import (
	"errors"
	"os"
	"os/exec"
)

// Setpgid is a no-op where process groups are unavailable
func Setpgid(*exec.Cmd) {}

// Terminate kills the process; there is no graceful signal to send here
func Terminate(pid int) error {
	return Kill(pid)
}

// Kill kills the process
func Kill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

// IsGone reports whether err means the target process no longer exists
func IsGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}
