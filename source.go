package hotrun

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EventSource delivers raw notifications for a single watched path.
//
// Implementations watch the parent directory of the path so that replacement
// of the file by unlink+create or rename stays visible, and filter the
// directory's events down to the path itself. Delivery is asynchronous with
// no ordering guarantee relative to the caller's own filesystem operations.
type EventSource interface {
	// Events returns the channel of raw events; it is closed after Stop
	Events() <-chan RawEvent
	// Errors returns runtime errors from the notification facility
	Errors() <-chan error
	// Stop releases the OS watch; it is safe to call more than once
	Stop() error
}

// Backend selects the notification library behind an EventSource
type Backend string

const (
	// BackendFsnotify uses github.com/fsnotify/fsnotify
	BackendFsnotify Backend = "fsnotify"
	// BackendNotify uses github.com/rjeczalik/notify
	BackendNotify Backend = "notify"
)

// ParseBackend converts a user supplied backend name
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "", BackendFsnotify:
		return BackendFsnotify, nil
	case BackendNotify:
		return BackendNotify, nil
	default:
		return "", fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, s)
	}
}

// NewEventSource starts watching path with the given backend. The parent
// directory must exist; the file itself may be absent.
func NewEventSource(path string, backend Backend) (EventSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, opErr(OpWatch, path, ErrWatchSetup, err)
	}

	dir := filepath.Dir(abs)
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, opErr(OpWatch, abs, ErrWatchSetup, err)
	}
	if !fi.IsDir() {
		return nil, opErr(OpWatch, abs, ErrWatchSetup, errors.New("parent is not a directory"))
	}

	switch backend {
	case "", BackendFsnotify:
		return newFsnotifySource(abs)
	case BackendNotify:
		return newNotifySource(abs)
	default:
		return nil, opErr(OpWatch, abs, ErrWatchUnavailable, fmt.Errorf("unknown backend %q", backend))
	}
}
