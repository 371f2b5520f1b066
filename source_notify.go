package hotrun

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rjeczalik/notify"
	"vawter.tech/stopper"
)

// notifySource is an EventSource backed by rjeczalik/notify. notify drops
// events when its channel is full, so the channel is generously buffered; the
// coalescer fingerprints the file after every burst anyway.
type notifySource struct {
	path   string
	name   string
	raw    chan notify.EventInfo
	events chan RawEvent
	errors chan error
	sctx   *stopper.Context
}

func newNotifySource(path string) (*notifySource, error) {
	s := &notifySource{
		path:   path,
		name:   filepath.Base(path),
		raw:    make(chan notify.EventInfo, 64),
		events: make(chan RawEvent, 16),
		errors: make(chan error, 1),
	}

	if err := notify.Watch(filepath.Dir(path), s.raw, notify.Create, notify.Write, notify.Remove, notify.Rename); err != nil {
		if os.IsNotExist(err) {
			return nil, opErr(OpWatch, path, ErrWatchSetup, err)
		}
		return nil, opErr(OpWatch, path, ErrWatchUnavailable, err)
	}

	s.sctx = stopper.WithContext(context.Background())
	s.sctx.Defer(func() {
		notify.Stop(s.raw)
		close(s.events)
	})
	s.sctx.Go(s.run)
	return s, nil
}

func (s *notifySource) Events() <-chan RawEvent { return s.events }

func (s *notifySource) Errors() <-chan error { return s.errors }

func (s *notifySource) Stop() error {
	s.sctx.Stop(100 * time.Millisecond)
	return s.sctx.Wait()
}

func (s *notifySource) run(sctx *stopper.Context) error {
	for !sctx.IsStopping() {
		select {
		case <-sctx.Stopping():
			return nil

		case ei := <-s.raw:
			if filepath.Base(ei.Path()) != s.name {
				continue
			}
			kind, ok := s.translate(ei.Event())
			if !ok {
				continue
			}
			select {
			case s.events <- RawEvent{Kind: kind, Path: s.path, Time: time.Now()}:
			case <-sctx.Stopping():
				return nil
			}
		}
	}
	return nil
}

// translate maps a notify event. notify reports both halves of a rename as
// Rename, so the target's existence decides which half this is.
func (s *notifySource) translate(ev notify.Event) (EventKind, bool) {
	switch {
	case ev&notify.Remove != 0:
		return EventRemoved, true
	case ev&notify.Rename != 0:
		if _, err := os.Lstat(s.path); err == nil {
			return EventRenamedTo, true
		}
		return EventRemoved, true
	case ev&notify.Create != 0:
		return EventCreated, true
	case ev&notify.Write != 0:
		return EventModified, true
	default:
		return 0, false
	}
}
