package hotrun

import (
	"errors"
	"io/fs"
	"time"

	"github.com/sirupsen/logrus"
	"vawter.tech/stopper"
)

// existence is the coalescer's view of whether the watched file is on disk
type existence int

const (
	existenceAbsentConfirmed existence = iota
	existencePresent
	existenceAbsentPending
)

func (e existence) String() string {
	switch e {
	case existencePresent:
		return "present"
	case existenceAbsentPending:
		return "absent-pending"
	default:
		return "absent-confirmed"
	}
}

// CoalescerConfig holds the tunables of a Coalescer
type CoalescerConfig struct {
	// GracePeriod is how long a removal may wait for a recreation
	GracePeriod time.Duration
	// SettleDelay debounces bursts before the file is fingerprinted
	SettleDelay time.Duration
	// Logger receives diagnostics; nil uses the logrus standard logger
	Logger logrus.FieldLogger
	// Metrics records event counts; may be nil
	Metrics *Metrics
}

// Coalescer turns the raw notifications of an EventSource into exactly one
// ChangeEvent per logical edit of the watched file.
//
// Overwrites, delete-then-recreate and rename-into-place all end up in the
// same per-path state machine: a removal only arms the grace timer, and any
// create or modify arms the settle timer. When the settle timer fires the
// file is fingerprinted and a ChangeEvent is emitted if it differs from the
// last one, or unconditionally if the file just reappeared. All state is
// owned by the goroutine executing Run.
type Coalescer struct {
	path    string
	source  EventSource
	grace   time.Duration
	settle  time.Duration
	log     logrus.FieldLogger
	metrics *Metrics

	changes chan ChangeEvent
	notices chan Notice
	errs    chan error

	state       existence
	fp          Fingerprint
	forceEmit   bool
	graceTimer  *time.Timer
	settleTimer *time.Timer
}

// NewCoalescer creates a Coalescer for path reading from source. The file is
// fingerprinted immediately so the first edit can be compared against it.
func NewCoalescer(path string, source EventSource, cfg CoalescerConfig) *Coalescer {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	c := &Coalescer{
		path:        path,
		source:      source,
		grace:       cfg.GracePeriod,
		settle:      cfg.SettleDelay,
		log:         cfg.Logger.WithField("path", path),
		metrics:     cfg.Metrics,
		changes:     make(chan ChangeEvent, 1),
		notices:     make(chan Notice, 4),
		errs:        make(chan error, 1),
		graceTimer:  newStoppedTimer(),
		settleTimer: newStoppedTimer(),
	}

	if fp, err := TakeFingerprint(path); err == nil {
		c.state = existencePresent
		c.fp = fp
	} else {
		c.log.WithError(err).Warn("entry file not readable at start")
	}

	return c
}

// Changes returns the reload triggers. At most one is ever outstanding:
// a change detected while one is pending replaces it.
func (c *Coalescer) Changes() <-chan ChangeEvent { return c.changes }

// Notices returns non-reload conditions such as FileRemoved
func (c *Coalescer) Notices() <-chan Notice { return c.notices }

// Errors returns fatal errors reported by the event source
func (c *Coalescer) Errors() <-chan error { return c.errs }

// Run processes events until the stopper context begins stopping or the
// source closes its event channel.
func (c *Coalescer) Run(ctx *stopper.Context) error {
	defer func() {
		c.graceTimer.Stop()
		c.settleTimer.Stop()
	}()

	events := c.source.Events()
	errs := c.source.Errors()

	for {
		select {
		case <-ctx.Stopping():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.handle(ev)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			c.fail(err)

		case <-c.graceTimer.C:
			c.graceExpired()

		case <-c.settleTimer.C:
			c.settled()
		}
	}
}

func (c *Coalescer) handle(ev RawEvent) {
	c.metrics.rawEvent(ev.Kind)
	log := c.log.WithFields(logrus.Fields{"kind": ev.Kind.String(), "state": c.state.String()})
	log.Debug("raw event")

	switch ev.Kind {
	case EventRemoved:
		c.settleTimer.Stop()
		c.forceEmit = false
		c.state = existenceAbsentPending
		c.graceTimer.Reset(c.grace)

	case EventCreated, EventRenamedTo:
		if c.state != existencePresent {
			c.graceTimer.Stop()
			c.state = existencePresent
			c.forceEmit = true
		}
		c.settleTimer.Reset(c.settle)

	case EventModified:
		if c.state == existenceAbsentPending {
			// The grace timer decides; its expiry re-checks the file.
			log.Debug("modify while absent, ignored")
			return
		}
		c.settleTimer.Reset(c.settle)

	default:
		log.Warn("unexpected event kind, ignored")
	}
}

func (c *Coalescer) settled() {
	fp, err := TakeFingerprint(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if c.state == existencePresent {
				c.log.Debug("file vanished before settle")
				c.state = existenceAbsentPending
				c.graceTimer.Reset(c.grace)
			}
			c.forceEmit = false
			return
		}
		c.log.WithError(err).Warn("fingerprint failed, treating as unchanged")
		return
	}

	if c.state != existencePresent {
		c.graceTimer.Stop()
		c.state = existencePresent
		c.forceEmit = true
	}

	if !c.forceEmit && fp.Equal(c.fp) {
		c.metrics.spurious()
		c.log.Debug("fingerprint unchanged")
		return
	}

	c.forceEmit = false
	c.fp = fp
	c.emit(ChangeEvent{Path: c.path, Fingerprint: fp, Time: time.Now()})
}

func (c *Coalescer) graceExpired() {
	if c.state != existenceAbsentPending {
		return
	}

	if _, err := TakeFingerprint(c.path); err == nil {
		// Replacement happened but its notification was lost.
		c.settled()
		return
	}

	c.state = existenceAbsentConfirmed
	c.fp = Fingerprint{}
	c.metrics.fileRemoved()
	c.log.Warn("entry file removed and not replaced, keeping current child")

	select {
	case c.notices <- Notice{Kind: NoticeFileRemoved, Path: c.path, Time: time.Now()}:
	default:
		c.log.Debug("notice buffer full, dropped")
	}
}

func (c *Coalescer) emit(ev ChangeEvent) {
	c.metrics.change()

	select {
	case c.changes <- ev:
		c.log.WithField("fingerprint", ev.Fingerprint.String()).Debug("change detected")
		return
	default:
	}

	// A trigger is already pending; keep only the newest. This goroutine is
	// the only sender, so the second send cannot block.
	select {
	case <-c.changes:
	default:
	}
	c.changes <- ev
	c.metrics.coalesced()
	c.log.Debug("reload already pending, coalesced")
}

func (c *Coalescer) fail(err error) {
	c.log.WithError(err).Error("watch failed")
	select {
	case c.errs <- err:
	default:
	}
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}
