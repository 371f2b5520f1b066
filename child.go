package hotrun

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/axondata/go-hotrun/internal/unix"
)

// maxLineSize bounds a single line of child output
const maxLineSize = 1 << 20

// childSpec describes how every generation of the child is launched
type childSpec struct {
	argv   []string
	dir    string
	env    []string
	stderr io.Writer
	entry  string
}

// ChildProcess is one running generation of the supervised program. Its
// standard output is split into lines and delivered to the supervisor's
// output channel; the first line marks the child as ready.
type ChildProcess struct {
	cmd        *exec.Cmd
	generation int
	log        logrus.FieldLogger

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	exitErr   error

	terminating atomic.Bool
}

// startChild spawns generation gen. Lines are sent to out until stopping is
// closed, after which they are read and dropped so the child never blocks on
// a full pipe.
func startChild(spec childSpec, gen int, out chan<- OutputLine, stopping <-chan struct{}, log logrus.FieldLogger) (*ChildProcess, error) {
	if len(spec.argv) == 0 {
		return nil, opErr(OpSpawn, spec.entry, ErrSpawn, errors.New("empty command"))
	}

	cmd := exec.Command(spec.argv[0], spec.argv[1:]...)
	cmd.Dir = spec.dir
	cmd.Env = append(append(make([]string, 0, len(spec.env)+1), spec.env...),
		EnvGeneration+"="+strconv.Itoa(gen))
	cmd.Stderr = spec.stderr
	unix.Setpgid(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, opErr(OpSpawn, spec.entry, ErrSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, opErr(OpSpawn, spec.entry, ErrSpawn, err)
	}

	c := &ChildProcess{
		cmd:        cmd,
		generation: gen,
		log:        log.WithFields(logrus.Fields{"generation": gen, "pid": cmd.Process.Pid}),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}

	go c.pump(stdout, out, stopping)

	c.log.Debug("child started")
	return c, nil
}

func (c *ChildProcess) pump(r io.Reader, out chan<- OutputLine, stopping <-chan struct{}) {
	defer close(c.done)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		c.markReady()
		line := OutputLine{Generation: c.generation, Text: sc.Text(), Time: time.Now()}
		select {
		case out <- line:
		case <-stopping:
		}
	}
	if err := sc.Err(); err != nil {
		c.log.WithError(err).Warn("reading child output")
	}
	// Drain anything left so Wait does not race with an unread pipe.
	_, _ = io.Copy(io.Discard, r)

	c.exitErr = c.cmd.Wait()
	c.markReady()
}

func (c *ChildProcess) markReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

// Generation returns the reload generation this child was started with
func (c *ChildProcess) Generation() int { return c.generation }

// PID returns the process id of the child
func (c *ChildProcess) PID() int { return c.cmd.Process.Pid }

// Ready is closed when the child writes its first line of output or exits
func (c *ChildProcess) Ready() <-chan struct{} { return c.ready }

// Done is closed once the child has exited and its output is drained
func (c *ChildProcess) Done() <-chan struct{} { return c.done }

// ExitErr returns the result of waiting on the child; valid after Done is closed
func (c *ChildProcess) ExitErr() error {
	select {
	case <-c.done:
		return c.exitErr
	default:
		return nil
	}
}

// ExitCode returns the child's exit code, or -1 if it has not exited or was signaled
func (c *ChildProcess) ExitCode() int {
	select {
	case <-c.done:
		if c.cmd.ProcessState == nil {
			return -1
		}
		return c.cmd.ProcessState.ExitCode()
	default:
		return -1
	}
}

// Expected reports whether the exit was requested through Terminate
func (c *ChildProcess) Expected() bool { return c.terminating.Load() }

// Terminate asks the child's process group to exit with SIGTERM and waits up
// to timeout. A child still alive after that is killed. forced reports
// whether SIGKILL was needed.
func (c *ChildProcess) Terminate(timeout time.Duration) (forced bool, err error) {
	select {
	case <-c.done:
		return false, nil
	default:
	}

	c.terminating.Store(true)
	pid := c.PID()

	if err := unix.Terminate(pid); err != nil && !unix.IsGone(err) {
		c.log.WithError(err).Warn("SIGTERM failed")
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-c.done:
		return false, nil
	case <-t.C:
	}

	c.log.WithField("timeout", timeout).Warn("child ignored SIGTERM, killing")
	if err := unix.Kill(pid); err != nil && !unix.IsGone(err) {
		return true, &OpError{Op: OpTerminate, Path: strconv.Itoa(pid), Err: err}
	}

	t.Reset(timeout)
	select {
	case <-c.done:
		return true, nil
	case <-t.C:
		return true, &OpError{Op: OpTerminate, Path: strconv.Itoa(pid), Err: fmt.Errorf("child did not exit after SIGKILL within %s", timeout)}
	}
}
