package hotrun

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
)

func TestMultiError(t *testing.T) {
	merr := &MultiError{}

	if err := merr.Err(); err != nil {
		t.Error("empty MultiError should return nil")
	}

	merr.Add(nil)
	if err := merr.Err(); err != nil {
		t.Error("MultiError with nil errors should return nil")
	}

	err1 := &OpError{Op: OpWatch, Path: "/path", Err: ErrWatchSetup}
	merr.Add(err1)

	if err := merr.Err(); err == nil {
		t.Error("MultiError with errors should return non-nil")
	}

	if merr.Error() != err1.Error() {
		t.Errorf("single error message = %v, want %v", merr.Error(), err1.Error())
	}

	err2 := &OpError{Op: OpTerminate, Path: "1234", Err: ErrStopped}
	merr.Add(err2)

	if merr.Error() != "2 errors occurred" {
		t.Errorf("multiple errors message = %v, want '2 errors occurred'", merr.Error())
	}

	if !errors.Is(merr, ErrStopped) || !errors.Is(merr, ErrWatchSetup) {
		t.Error("MultiError should match every wrapped sentinel")
	}
}

func TestOpErrorWrapping(t *testing.T) {
	err := opErr(OpSpawn, "/srv/app.js", ErrSpawn, fs.ErrNotExist)

	if !errors.Is(err, ErrSpawn) {
		t.Error("expected ErrSpawn in chain")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Error("expected cause in chain")
	}

	var oe *OpError
	if !errors.As(err, &oe) {
		t.Fatal("expected *OpError")
	}
	if oe.Op != OpSpawn || oe.Path != "/srv/app.js" {
		t.Errorf("OpError = %+v", oe)
	}

	msg := err.Error()
	if !strings.HasPrefix(msg, `hotrun spawn "/srv/app.js": `) {
		t.Errorf("unexpected message %q", msg)
	}

	if bare := opErr(OpWatch, "/x", ErrWatchUnavailable, nil); !errors.Is(bare, ErrWatchUnavailable) {
		t.Error("nil cause should still wrap the kind")
	}
}

func TestOperationString(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpUnknown, "unknown"},
		{OpWatch, "watch"},
		{OpStat, "stat"},
		{OpSpawn, "spawn"},
		{OpTerminate, "terminate"},
		{OpConfig, "config"},
		{Operation(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Operation(%d).String() = %v, want %v", tt.op, got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateRestarting, "restarting"},
		{StateStopped, "stopped"},
		{State(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestEventKindString(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{EventModified, "modified"},
		{EventCreated, "created"},
		{EventRemoved, "removed"},
		{EventRenamedTo, "renamed_to"},
		{EventKind(0), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("EventKind(%d).String() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestNoticeKindString(t *testing.T) {
	tests := []struct {
		kind NoticeKind
		want string
	}{
		{NoticeFileRemoved, "file_removed"},
		{NoticeChildExited, "child_exited"},
		{NoticeKind(0), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("NoticeKind(%d).String() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
