package hotrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"vawter.tech/stopper"
)

// Supervisor runs a program from an entry file and restarts it every time the
// entry file changes on disk.
//
// All state transitions happen on a single coordination goroutine. Change
// triggers arriving while a restart is in flight are merged by the Coalescer
// into one pending trigger, so every restart is followed by at most one more.
// Only one child is ever alive: the next generation is spawned after the
// previous one has exited.
type Supervisor struct {
	id    string
	entry string
	cfg   Config
	log   logrus.FieldLogger
	spec  childSpec

	state      atomic.Int32
	generation atomic.Int64
	pid        atomic.Int64

	output  chan OutputLine
	notices chan Notice
	done    chan struct{}

	mu       sync.Mutex
	started  bool
	sctx     *stopper.Context
	halt     chan struct{}
	haltOnce sync.Once

	// owned by the coordination goroutine once Start returns
	source    EventSource
	coalescer *Coalescer
	child     *ChildProcess
	childGone bool
	err       error
	stopErr   error
}

// New creates a Supervisor for the given entry file. Nothing is watched or
// spawned until Start.
func New(entry string, opts ...Option) (*Supervisor, error) {
	if entry == "" {
		return nil, &OpError{Op: OpConfig, Err: fmt.Errorf("%w: entry path is required", ErrInvalidConfig)}
	}

	abs, err := filepath.Abs(entry)
	if err != nil {
		return nil, opErr(OpConfig, entry, ErrInvalidConfig, err)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.normalize()

	if _, err := ParseBackend(string(cfg.Backend)); err != nil {
		return nil, &OpError{Op: OpConfig, Path: abs, Err: err}
	}

	id := uuid.NewString()

	s := &Supervisor{
		id:      id,
		entry:   abs,
		cfg:     cfg,
		log:     cfg.Logger.WithFields(logrus.Fields{"session": id, "entry": abs}),
		output:  make(chan OutputLine, cfg.OutputBuffer),
		notices: make(chan Notice, 4),
		done:    make(chan struct{}),
		halt:    make(chan struct{}),
	}

	argv := make([]string, 0, len(cfg.Interpreter)+1+len(cfg.Args))
	argv = append(argv, cfg.Interpreter...)
	argv = append(argv, abs)
	argv = append(argv, cfg.Args...)

	s.spec = childSpec{
		argv:   argv,
		dir:    cfg.Dir,
		env:    childEnv(cfg.Env, abs, id),
		stderr: cfg.Stderr,
		entry:  abs,
	}

	return s, nil
}

func childEnv(extra map[string]string, entry, session string) []string {
	env := os.Environ()

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}

	return append(env, EnvEntry+"="+entry, EnvSession+"="+session)
}

// ID returns the session id of this supervisor
func (s *Supervisor) ID() string { return s.id }

// Entry returns the absolute path of the watched entry file
func (s *Supervisor) Entry() string { return s.entry }

// Generation returns the current reload generation, 0 before the first reload
func (s *Supervisor) Generation() int { return int(s.generation.Load()) }

// State returns the current lifecycle state
func (s *Supervisor) State() State { return State(s.state.Load()) }

// PID returns the process id of the live child, or 0 if none is running
func (s *Supervisor) PID() int { return int(s.pid.Load()) }

// Output returns the line stream of every generation's standard output. It
// is closed after the supervisor stops. Callers must keep draining it: a
// child blocked on a full pipe cannot be restarted promptly.
func (s *Supervisor) Output() <-chan OutputLine { return s.output }

// Notices returns non-reload conditions such as the entry file being removed
func (s *Supervisor) Notices() <-chan Notice { return s.notices }

func (s *Supervisor) setState(st State) {
	old := State(s.state.Swap(int32(st)))
	if old != st {
		s.log.WithFields(logrus.Fields{"from": old.String(), "to": st.String()}).Debug("state change")
	}
}

// Start sets up the watch, spawns generation 0 and begins supervising in the
// background. Watch setup and spawn failures are returned here and leave the
// supervisor Stopped.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("%w: supervisor already started", ErrStopped)
	}
	s.started = true
	s.setState(StateStarting)

	source, err := NewEventSource(s.entry, s.cfg.Backend)
	if err != nil {
		s.abort(err)
		return err
	}
	s.source = source
	s.coalescer = NewCoalescer(s.entry, source, CoalescerConfig{
		GracePeriod: s.cfg.GracePeriod,
		SettleDelay: s.cfg.SettleDelay,
		Logger:      s.log,
		Metrics:     s.cfg.Metrics,
	})

	sctx := stopper.WithContext(ctx)

	if err := s.spawn(sctx, 0); err != nil {
		sctx.Stop(0)
		s.abort(err)
		return err
	}
	s.awaitReady(sctx, s.child)

	s.setState(StateRunning)
	s.sctx = sctx
	sctx.Defer(s.teardown)
	sctx.Go(s.coalescer.Run)
	sctx.Go(s.loop)

	s.log.WithField("backend", string(s.cfg.Backend)).Info("watching entry file")
	return nil
}

// abort finishes a failed Start
func (s *Supervisor) abort(err error) {
	s.log.WithError(err).Error("supervisor failed to start")
	s.err = err
	if s.source != nil {
		_ = s.source.Stop()
	}
	close(s.output)
	close(s.notices)
	s.setState(StateStopped)
	close(s.done)
}

// Run starts the supervisor and blocks until it stops
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	return s.Wait()
}

// Stop terminates the child, tears down the watch and waits for shutdown.
// It also ends a RunOnce in progress. It is safe to call more than once.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	sctx, started := s.sctx, s.started
	s.mu.Unlock()

	if !started {
		return nil
	}
	s.haltOnce.Do(func() { close(s.halt) })
	if sctx != nil {
		sctx.Stop(s.cfg.StopTimeout*2 + time.Second)
	}
	<-s.done
	return s.stopErr
}

// Wait blocks until the supervisor stops and returns the fatal error that
// stopped it, or nil after a requested stop.
func (s *Supervisor) Wait() error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if !started {
		return fmt.Errorf("%w: supervisor not started", ErrStopped)
	}
	<-s.done
	return s.err
}

func (s *Supervisor) loop(sctx *stopper.Context) error {
	for {
		var childDone <-chan struct{}
		if s.child != nil && !s.childGone {
			childDone = s.child.Done()
		}

		select {
		case <-sctx.Stopping():
			s.shutdownChild()
			return nil

		case <-sctx.Done():
			sctx.Stop(s.cfg.StopTimeout)
			s.shutdownChild()
			return nil

		case ev := <-s.coalescer.Changes():
			if err := s.restart(sctx, ev); err != nil {
				s.fail(sctx, err)
				return nil
			}

		case n := <-s.coalescer.Notices():
			select {
			case s.notices <- n:
			default:
			}

		case err := <-s.coalescer.Errors():
			s.fail(sctx, err)
			return nil

		case <-childDone:
			s.childGone = true
			s.pid.Store(0)
			if s.child.Expected() {
				continue
			}
			s.cfg.Metrics.childExit()
			s.child.log.WithField("exit", exitString(s.child.ExitErr())).Info("child exited, waiting for changes")
			select {
			case s.notices <- Notice{
				Kind:       NoticeChildExited,
				Path:       s.entry,
				Time:       time.Now(),
				Generation: s.child.Generation(),
				ExitCode:   s.child.ExitCode(),
			}:
			default:
			}
		}
	}
}

func (s *Supervisor) restart(sctx *stopper.Context, ev ChangeEvent) error {
	started := time.Now()
	s.setState(StateRestarting)

	if s.child != nil {
		forced, err := s.child.Terminate(s.cfg.StopTimeout)
		if forced {
			s.cfg.Metrics.forcedKill()
		}
		if err != nil {
			return err
		}
		s.pid.Store(0)
	}

	if sctx.IsStopping() {
		return nil
	}

	gen := s.Generation() + 1
	if err := s.spawn(sctx, gen); err != nil {
		return err
	}
	s.generation.Store(int64(gen))
	s.awaitReady(sctx, s.child)

	s.setState(StateRunning)
	took := time.Since(started)
	s.cfg.Metrics.restarted(gen, took)
	s.log.WithFields(logrus.Fields{
		"generation": gen,
		"pid":        s.child.PID(),
		"took":       took.Round(time.Millisecond),
		"change_lag": started.Sub(ev.Time).Round(time.Millisecond),
	}).Info("reloaded")
	return nil
}

func (s *Supervisor) spawn(sctx *stopper.Context, gen int) error {
	child, err := startChild(s.spec, gen, s.output, sctx.Stopping(), s.log)
	if err != nil {
		return err
	}
	s.child = child
	s.childGone = false
	s.pid.Store(int64(child.PID()))
	return nil
}

func (s *Supervisor) awaitReady(sctx *stopper.Context, child *ChildProcess) {
	t := time.NewTimer(s.cfg.ReadyTimeout)
	defer t.Stop()

	select {
	case <-child.Ready():
	case <-t.C:
		child.log.WithField("timeout", s.cfg.ReadyTimeout).Warn("no output from child within ready timeout")
	case <-sctx.Stopping():
	}
}

func (s *Supervisor) shutdownChild() {
	if s.child == nil {
		return
	}
	forced, err := s.child.Terminate(s.cfg.StopTimeout)
	if forced {
		s.cfg.Metrics.forcedKill()
	}
	if err != nil {
		s.log.WithError(err).Error("child did not exit")
	}
	s.pid.Store(0)
}

func (s *Supervisor) fail(sctx *stopper.Context, err error) {
	s.log.WithError(err).Error("supervisor stopping on fatal error")
	s.err = err
	s.shutdownChild()
	sctx.Stop(s.cfg.StopTimeout)
}

// teardown runs once every supervised goroutine has returned
func (s *Supervisor) teardown() {
	merr := &MultiError{}
	merr.Add(s.source.Stop())

	drained := true
	if s.child != nil {
		select {
		case <-s.child.Done():
		default:
			drained = false
		}
	}
	// A child that survived SIGKILL may still write; leave its channel open.
	if drained {
		close(s.output)
	}
	close(s.notices)

	s.stopErr = merr.Err()
	s.setState(StateStopped)
	s.log.Info("supervisor stopped")
	close(s.done)
}

// RunOnce runs the entry a single time without watching it, copying its
// output to w. The child is terminated if ctx is cancelled or Stop is
// called. It returns the child's exit code.
func (s *Supervisor) RunOnce(ctx context.Context, w io.Writer) (int, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return -1, fmt.Errorf("%w: supervisor already started", ErrStopped)
	}
	s.started = true
	s.mu.Unlock()

	stopping := make(chan struct{})
	child, err := startChild(s.spec, 0, s.output, stopping, s.log)
	if err != nil {
		s.abort(err)
		return -1, err
	}
	s.child = child
	s.pid.Store(int64(child.PID()))
	s.setState(StateRunning)

	copied := make(chan struct{})
	go func() {
		defer close(copied)
		for line := range s.output {
			fmt.Fprintln(w, line.Text)
		}
	}()

	select {
	case <-child.Done():
	case <-ctx.Done():
		s.terminateChild(child)
	case <-s.halt:
		s.terminateChild(child)
	}

	close(stopping)
	<-child.Done()
	close(s.output)
	<-copied
	close(s.notices)
	s.pid.Store(0)
	s.setState(StateStopped)
	close(s.done)

	var exitErr *exec.ExitError
	if err := child.ExitErr(); err != nil && !errors.As(err, &exitErr) {
		return -1, err
	}
	return child.ExitCode(), nil
}

func (s *Supervisor) terminateChild(child *ChildProcess) {
	if _, err := child.Terminate(s.cfg.StopTimeout); err != nil {
		s.log.WithError(err).Error("child did not exit")
	}
}

func exitString(err error) string {
	if err == nil {
		return "status 0"
	}
	return err.Error()
}
