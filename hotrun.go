package hotrun

import "time"

// Timing defaults
const (
	// DefaultGracePeriod is how long a removed entry file may stay absent before
	// the removal is reported as a FileRemoved notice instead of being absorbed
	// into a delete-then-recreate edit
	DefaultGracePeriod = 50 * time.Millisecond

	// DefaultSettleDelay is the debounce applied after a create or modify
	// notification before the entry file is fingerprinted
	DefaultSettleDelay = 25 * time.Millisecond

	// DefaultStopTimeout is how long a child may take to exit after SIGTERM
	// before it is killed
	DefaultStopTimeout = 2 * time.Second

	// DefaultReadyTimeout bounds the wait for a new child's first line of output
	DefaultReadyTimeout = 2 * time.Second

	// DefaultOutputBuffer is the capacity of the supervisor output channel
	DefaultOutputBuffer = 64
)

// Environment variables handed to every child
const (
	// EnvGeneration carries the reload generation, "0" for the initial run
	EnvGeneration = "HOTRUN_GENERATION"

	// EnvEntry carries the absolute path of the watched entry file
	EnvEntry = "HOTRUN_ENTRY"

	// EnvSession carries the supervisor session id
	EnvSession = "HOTRUN_SESSION"
)

// FileMode is the default mode for files written by the launcher
const FileMode = 0o644

// Operation identifies the step that produced an OpError
type Operation int

const (
	// OpUnknown represents an unknown operation
	OpUnknown Operation = iota
	// OpWatch sets up or services the filesystem watch
	OpWatch
	// OpStat fingerprints the entry file
	OpStat
	// OpSpawn starts a child process
	OpSpawn
	// OpTerminate stops a child process
	OpTerminate
	// OpConfig loads or validates configuration
	OpConfig
)

// Operation string constants
const (
	opUnknownStr   = "unknown"
	opWatchStr     = "watch"
	opStatStr      = "stat"
	opSpawnStr     = "spawn"
	opTerminateStr = "terminate"
	opConfigStr    = "config"
)

// String returns the string representation of an Operation
func (op Operation) String() string {
	switch op {
	case OpWatch:
		return opWatchStr
	case OpStat:
		return opStatStr
	case OpSpawn:
		return opSpawnStr
	case OpTerminate:
		return opTerminateStr
	case OpConfig:
		return opConfigStr
	default:
		return opUnknownStr
	}
}

// State is the lifecycle state of a Supervisor
type State int32

const (
	// StateStarting is the state before the first child reports readiness
	StateStarting State = iota
	// StateRunning indicates a child has been spawned for the current generation
	StateRunning
	// StateRestarting indicates the old child is being replaced
	StateRestarting
	// StateStopped is terminal; no further events are processed
	StateStopped
)

const (
	stateStartingStr   = "starting"
	stateRunningStr    = "running"
	stateRestartingStr = "restarting"
	stateStoppedStr    = "stopped"
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateStarting:
		return stateStartingStr
	case StateRunning:
		return stateRunningStr
	case StateRestarting:
		return stateRestartingStr
	case StateStopped:
		return stateStoppedStr
	default:
		return opUnknownStr
	}
}
