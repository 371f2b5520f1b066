package hotrun

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"
)

// fsnotifySource is the default EventSource
type fsnotifySource struct {
	path    string
	name    string
	watcher *fsnotify.Watcher
	events  chan RawEvent
	errors  chan error
	sctx    *stopper.Context
}

func newFsnotifySource(path string) (*fsnotifySource, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, opErr(OpWatch, path, ErrWatchUnavailable, err)
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, opErr(OpWatch, path, ErrWatchSetup, err)
	}

	s := &fsnotifySource{
		path:    path,
		name:    filepath.Base(path),
		watcher: watcher,
		events:  make(chan RawEvent, 16),
		errors:  make(chan error, 4),
		sctx:    stopper.WithContext(context.Background()),
	}

	// Release the watch and close the stream once the loop has returned
	s.sctx.Defer(func() {
		_ = watcher.Close()
		close(s.events)
	})
	s.sctx.Go(s.run)
	return s, nil
}

func (s *fsnotifySource) Events() <-chan RawEvent { return s.events }

func (s *fsnotifySource) Errors() <-chan error { return s.errors }

func (s *fsnotifySource) Stop() error {
	s.sctx.Stop(100 * time.Millisecond)
	return s.sctx.Wait()
}

func (s *fsnotifySource) run(sctx *stopper.Context) error {
	for !sctx.IsStopping() {
		select {
		case <-sctx.Stopping():
			return nil

		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != s.name {
				continue
			}
			kind, ok := translateFsnotify(event.Op)
			if !ok {
				continue
			}
			if !s.send(sctx, RawEvent{Kind: kind, Path: s.path, Time: time.Now()}) {
				return nil
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were lost; ask the coalescer to re-check the file.
				if !s.send(sctx, RawEvent{Kind: EventModified, Path: s.path, Time: time.Now()}) {
					return nil
				}
				continue
			}
			select {
			case s.errors <- &OpError{Op: OpWatch, Path: s.path, Err: err}:
			case <-sctx.Stopping():
				return nil
			}
		}
	}
	return nil
}

func (s *fsnotifySource) send(sctx *stopper.Context, ev RawEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-sctx.Stopping():
		return false
	}
}

// translateFsnotify maps an fsnotify op set to a single raw event kind. A
// rename reported against the watched name means the file moved away; a file
// moved onto the name is reported by fsnotify as Create.
func translateFsnotify(op fsnotify.Op) (EventKind, bool) {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return EventRemoved, true
	case op.Has(fsnotify.Create):
		return EventCreated, true
	case op.Has(fsnotify.Write), op.Has(fsnotify.Chmod):
		return EventModified, true
	default:
		return 0, false
	}
}
