package hotrun

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"vawter.tech/stopper"
)

// Test timings, short enough to keep the suite fast and long enough for
// notification delivery on a loaded CI machine
const (
	testGrace   = 60 * time.Millisecond
	testSettle  = 15 * time.Millisecond
	testTimeout = 5 * time.Second
)

// entryScript is the supervised program used by process tests. It prints a
// marker line for every execution and then idles until terminated.
const entryScript = `if [ "${HOTRUN_GENERATION:-0}" -gt 0 ]; then
  echo "[#!root] Reloaded: ${HOTRUN_GENERATION}"
else
  echo "[#!root] started"
fi
exec sleep 30
`

// requireShell skips the test if processes cannot be supervised here
func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skipf("process supervision tests need linux or darwin, running on %s", runtime.GOOS)
	}
	for _, tool := range []string{"sh", "sleep"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not found in PATH", tool)
		}
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), FileMode))
}

func writeEntry(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "hot-runner.sh")
	writeFile(t, path, body)
	return path
}

func nullLogger() (*logrus.Logger, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

// fakeSource is an EventSource fed by the test
type fakeSource struct {
	events chan RawEvent
	errors chan error
	once   sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		events: make(chan RawEvent, 16),
		errors: make(chan error, 1),
	}
}

func (f *fakeSource) Events() <-chan RawEvent { return f.events }
func (f *fakeSource) Errors() <-chan error    { return f.errors }

func (f *fakeSource) Stop() error {
	f.once.Do(func() { close(f.events) })
	return nil
}

func (f *fakeSource) send(kind EventKind, path string) {
	f.events <- RawEvent{Kind: kind, Path: path, Time: time.Now()}
}

// runCoalescer starts c under a stopper context that is stopped at cleanup
func runCoalescer(t *testing.T, c *Coalescer) {
	t.Helper()
	sctx := stopper.WithContext(context.Background())
	sctx.Go(c.Run)
	t.Cleanup(func() {
		sctx.Stop(time.Second)
		_ = sctx.Wait()
	})
}

func expectChange(t *testing.T, c *Coalescer) ChangeEvent {
	t.Helper()
	select {
	case ev := <-c.Changes():
		return ev
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for change event")
		return ChangeEvent{}
	}
}

func expectNoChange(t *testing.T, c *Coalescer, d time.Duration) {
	t.Helper()
	select {
	case ev := <-c.Changes():
		t.Fatalf("unexpected change event: %+v", ev)
	case <-time.After(d):
	}
}

func expectNotice(t *testing.T, ch <-chan Notice) Notice {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for notice")
		return Notice{}
	}
}

func writeBench(path string) error {
	return os.WriteFile(path, []byte("console.log('bench')\n"), FileMode)
}

func benchLogger() logrus.FieldLogger {
	logger, _ := logtest.NewNullLogger()
	return logger
}
