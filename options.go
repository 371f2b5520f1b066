package hotrun

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds the settings of a Supervisor
type Config struct {
	// Interpreter is prepended to the entry path, e.g. ["node"] or ["sh"].
	// Empty means the entry file is executed directly.
	Interpreter []string
	// Args are appended after the entry path
	Args []string
	// Dir is the child's working directory; empty inherits the supervisor's
	Dir string
	// Env holds extra environment variables for the child
	Env map[string]string
	// GracePeriod bounds how long a removed entry may wait for its replacement
	GracePeriod time.Duration
	// SettleDelay debounces notification bursts before fingerprinting
	SettleDelay time.Duration
	// StopTimeout is how long a child gets to exit after SIGTERM
	StopTimeout time.Duration
	// ReadyTimeout bounds the wait for a new child's first output line
	ReadyTimeout time.Duration
	// Backend selects the notification library
	Backend Backend
	// Logger receives structured diagnostics
	Logger logrus.FieldLogger
	// Metrics records engine counters; may be nil
	Metrics *Metrics
	// Stderr receives the child's standard error
	Stderr io.Writer
	// OutputBuffer is the capacity of the Output channel
	OutputBuffer int
}

// Option configures a Supervisor
type Option func(*Config)

// WithInterpreter runs the entry file through the given command
func WithInterpreter(argv ...string) Option {
	return func(c *Config) {
		c.Interpreter = argv
	}
}

// WithArgs sets arguments passed after the entry path
func WithArgs(args ...string) Option {
	return func(c *Config) {
		c.Args = args
	}
}

// WithDir sets the child's working directory
func WithDir(dir string) Option {
	return func(c *Config) {
		c.Dir = dir
	}
}

// WithEnv adds an environment variable for the child
func WithEnv(key, value string) Option {
	return func(c *Config) {
		if c.Env == nil {
			c.Env = make(map[string]string)
		}
		c.Env[key] = value
	}
}

// WithGracePeriod sets how long a removal waits for a recreation
func WithGracePeriod(d time.Duration) Option {
	return func(c *Config) {
		c.GracePeriod = d
	}
}

// WithSettleDelay sets the debounce applied before fingerprinting
func WithSettleDelay(d time.Duration) Option {
	return func(c *Config) {
		c.SettleDelay = d
	}
}

// WithStopTimeout sets how long a child may take to exit before it is killed
func WithStopTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.StopTimeout = d
	}
}

// WithReadyTimeout bounds the wait for a child's first line of output
func WithReadyTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ReadyTimeout = d
	}
}

// WithBackend selects the filesystem notification backend
func WithBackend(b Backend) Option {
	return func(c *Config) {
		c.Backend = b
	}
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMetrics enables Prometheus metrics
func WithMetrics(m *Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithStderr sets where the child's standard error goes
func WithStderr(w io.Writer) Option {
	return func(c *Config) {
		c.Stderr = w
	}
}

// WithOutputBuffer sets the capacity of the Output channel
func WithOutputBuffer(n int) Option {
	return func(c *Config) {
		c.OutputBuffer = n
	}
}

func defaultConfig() Config {
	return Config{
		GracePeriod:  DefaultGracePeriod,
		SettleDelay:  DefaultSettleDelay,
		StopTimeout:  DefaultStopTimeout,
		ReadyTimeout: DefaultReadyTimeout,
		Backend:      BackendFsnotify,
		Stderr:       os.Stderr,
		OutputBuffer: DefaultOutputBuffer,
	}
}

func (c *Config) normalize() {
	d := defaultConfig()
	if c.GracePeriod <= 0 {
		c.GracePeriod = d.GracePeriod
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = d.SettleDelay
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = d.StopTimeout
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = d.ReadyTimeout
	}
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.Stderr == nil {
		c.Stderr = d.Stderr
	}
	if c.OutputBuffer < 0 {
		c.OutputBuffer = 0
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}
