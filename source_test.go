package hotrun

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"
	"github.com/stretchr/testify/require"
)

var backends = []Backend{BackendFsnotify, BackendNotify}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{"", BackendFsnotify, false},
		{"fsnotify", BackendFsnotify, false},
		{" Notify ", BackendNotify, false},
		{"kqueue", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBackend(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTranslateFsnotify(t *testing.T) {
	tests := []struct {
		op   fsnotify.Op
		want EventKind
		ok   bool
	}{
		{fsnotify.Create, EventCreated, true},
		{fsnotify.Write, EventModified, true},
		{fsnotify.Chmod, EventModified, true},
		{fsnotify.Remove, EventRemoved, true},
		{fsnotify.Rename, EventRemoved, true},
		{fsnotify.Create | fsnotify.Write, EventCreated, true},
		{0, 0, false},
	}

	for _, tt := range tests {
		got, ok := translateFsnotify(tt.op)
		require.Equal(t, tt.ok, ok, tt.op.String())
		require.Equal(t, tt.want, got, tt.op.String())
	}
}

func TestNewEventSourceMissingParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "entry.js")

	for _, b := range backends {
		t.Run(string(b), func(t *testing.T) {
			_, err := NewEventSource(path, b)
			require.ErrorIs(t, err, ErrWatchSetup)

			var oe *OpError
			require.True(t, errors.As(err, &oe))
			require.Equal(t, OpWatch, oe.Op)
		})
	}
}

func TestNewEventSourceParentIsFile(t *testing.T) {
	dir := t.TempDir()
	parent := filepath.Join(dir, "file")
	writeFile(t, parent, "x")

	_, err := NewEventSource(filepath.Join(parent, "entry.js"), BackendFsnotify)
	require.ErrorIs(t, err, ErrWatchSetup)
}

func TestNewEventSourceUnknownBackend(t *testing.T) {
	_, err := NewEventSource(filepath.Join(t.TempDir(), "entry.js"), Backend("inotify2"))
	require.ErrorIs(t, err, ErrWatchUnavailable)
}

func TestEventSourceFiltersSiblings(t *testing.T) {
	for _, b := range backends {
		t.Run(string(b), func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "entry.js")
			writeFile(t, path, "v1")

			src, err := NewEventSource(path, b)
			require.NoError(t, err)
			t.Cleanup(func() { _ = src.Stop() })

			writeFile(t, filepath.Join(dir, "other.js"), "noise")
			writeFile(t, path+".tmpfile", "noise")
			writeFile(t, path, "v2")

			select {
			case ev := <-src.Events():
				require.Equal(t, path, ev.Path)
			case <-time.After(testTimeout):
				t.Fatal("timeout waiting for event")
			}
		})
	}
}

func TestEventSourceStopClosesEvents(t *testing.T) {
	for _, b := range backends {
		t.Run(string(b), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "entry.js")

			src, err := NewEventSource(path, b)
			require.NoError(t, err)

			require.NoError(t, src.Stop())
			_ = src.Stop()

			deadline := time.After(testTimeout)
			for {
				select {
				case _, ok := <-src.Events():
					if !ok {
						return
					}
				case <-deadline:
					t.Fatal("events channel not closed after Stop")
				}
			}
		})
	}
}

// TestPipelineReplacementPatterns drives a real source through the coalescer
// for every way an editor or tool can replace the file, three times each.
func TestPipelineReplacementPatterns(t *testing.T) {
	patterns := map[string]func(t *testing.T, path, body string){
		"overwrite": func(t *testing.T, path, body string) {
			writeFile(t, path, body)
		},
		"unlink-rewrite": func(t *testing.T, path, body string) {
			require.NoError(t, os.Remove(path))
			writeFile(t, path, body)
		},
		"tmpfile-rename": func(t *testing.T, path, body string) {
			tmp := path + ".tmpfile"
			writeFile(t, tmp, body)
			require.NoError(t, os.Rename(tmp, path))
		},
		"renameio": func(t *testing.T, path, body string) {
			require.NoError(t, renameio.WriteFile(path, []byte(body), FileMode))
		},
	}

	for _, b := range backends {
		for name, replace := range patterns {
			t.Run(string(b)+"/"+name, func(t *testing.T) {
				dir := t.TempDir()
				path := filepath.Join(dir, "entry.js")
				writeFile(t, path, "v0")

				src, err := NewEventSource(path, b)
				require.NoError(t, err)

				logger, _ := nullLogger()
				c := NewCoalescer(path, src, CoalescerConfig{
					GracePeriod: testGrace,
					SettleDelay: testSettle,
					Logger:      logger,
				})
				runCoalescer(t, c)
				t.Cleanup(func() { _ = src.Stop() })

				for i := 1; i <= 3; i++ {
					replace(t, path, "version "+string(rune('0'+i)))
					expectChange(t, c)
					expectNoChange(t, c, 2*testGrace)
				}
			})
		}
	}
}
