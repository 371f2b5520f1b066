package hotrun

import "time"

// EventKind classifies a raw filesystem notification
type EventKind int

const (
	// EventModified reports a content or metadata change at the existing path
	EventModified EventKind = iota + 1
	// EventCreated reports the path appearing
	EventCreated
	// EventRemoved reports the path disappearing, by unlink or rename away
	EventRemoved
	// EventRenamedTo reports another file being renamed onto the path
	EventRenamedTo
)

// String returns the string representation of an EventKind
func (k EventKind) String() string {
	switch k {
	case EventModified:
		return "modified"
	case EventCreated:
		return "created"
	case EventRemoved:
		return "removed"
	case EventRenamedTo:
		return "renamed_to"
	default:
		return "unknown"
	}
}

// RawEvent is a single notification produced by an EventSource
type RawEvent struct {
	Kind EventKind
	Path string
	Time time.Time
}

// ChangeEvent signals that the watched file now differs from what the current
// child was started with
type ChangeEvent struct {
	Path        string
	Fingerprint Fingerprint
	Time        time.Time
}

// NoticeKind classifies a non-reload condition reported by the coalescer
type NoticeKind int

const (
	// NoticeFileRemoved means the entry file disappeared and was not replaced
	// within the grace period
	NoticeFileRemoved NoticeKind = iota + 1
	// NoticeChildExited means the child exited without being asked to. The
	// supervisor keeps running and the next change starts a new generation.
	NoticeChildExited
)

// String returns the string representation of a NoticeKind
func (k NoticeKind) String() string {
	switch k {
	case NoticeFileRemoved:
		return "file_removed"
	case NoticeChildExited:
		return "child_exited"
	default:
		return "unknown"
	}
}

// Notice reports a condition that does not trigger a reload
type Notice struct {
	Kind NoticeKind
	Path string
	Time time.Time
	// Generation and ExitCode are set for NoticeChildExited. ExitCode is -1
	// if the child was killed by a signal.
	Generation int
	ExitCode   int
}

// OutputLine is one line written by a child to its standard output
type OutputLine struct {
	// Generation is the reload generation of the child that wrote the line
	Generation int
	// Text is the line without its trailing newline
	Text string
	// Time is when the line was read
	Time time.Time
}
