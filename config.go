package hotrun

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads from strings such as "50ms" in
// YAML and TOML files
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration as a Go duration string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML parses a YAML scalar as a Go duration string
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	return d.UnmarshalText([]byte(node.Value))
}

// FileConfig is the on-disk configuration of the hotrun launcher
type FileConfig struct {
	Entry        string            `yaml:"entry" toml:"entry"`
	Exec         []string          `yaml:"exec" toml:"exec"`
	Args         []string          `yaml:"args" toml:"args"`
	Dir          string            `yaml:"dir" toml:"dir"`
	Env          map[string]string `yaml:"env" toml:"env"`
	Watch        bool              `yaml:"watch" toml:"watch"`
	Backend      string            `yaml:"backend" toml:"backend"`
	GracePeriod  Duration          `yaml:"grace_period" toml:"grace_period"`
	SettleDelay  Duration          `yaml:"settle_delay" toml:"settle_delay"`
	StopTimeout  Duration          `yaml:"stop_timeout" toml:"stop_timeout"`
	ReadyTimeout Duration          `yaml:"ready_timeout" toml:"ready_timeout"`
	LogLevel     string            `yaml:"log_level" toml:"log_level"`
	LogFormat    string            `yaml:"log_format" toml:"log_format"`
	MetricsAddr  string            `yaml:"metrics_addr" toml:"metrics_addr"`
	PIDFile      string            `yaml:"pid_file" toml:"pid_file"`
}

// LoadConfig reads a YAML (.yaml, .yml) or TOML (.toml) config file. Unknown
// keys are rejected. A relative entry or dir is resolved against the
// directory holding the config file.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &OpError{Op: OpConfig, Path: path, Err: err}
	}

	fc := &FileConfig{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(fc); err != nil {
			return nil, opErr(OpConfig, path, ErrInvalidConfig, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), fc)
		if err != nil {
			return nil, opErr(OpConfig, path, ErrInvalidConfig, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, opErr(OpConfig, path, ErrInvalidConfig, fmt.Errorf("unknown keys %v", undecoded))
		}
	default:
		return nil, opErr(OpConfig, path, ErrInvalidConfig, fmt.Errorf("unsupported config format %q", ext))
	}

	base := filepath.Dir(path)
	if fc.Entry != "" && !filepath.IsAbs(fc.Entry) {
		fc.Entry = filepath.Join(base, fc.Entry)
	}
	if fc.Dir != "" && !filepath.IsAbs(fc.Dir) {
		fc.Dir = filepath.Join(base, fc.Dir)
	}

	if _, err := ParseBackend(fc.Backend); err != nil {
		return nil, &OpError{Op: OpConfig, Path: path, Err: err}
	}

	return fc, nil
}

// Options converts the file settings into supervisor options. Zero values
// are left to the defaults.
func (fc *FileConfig) Options() []Option {
	var opts []Option

	if len(fc.Exec) > 0 {
		opts = append(opts, WithInterpreter(fc.Exec...))
	}
	if len(fc.Args) > 0 {
		opts = append(opts, WithArgs(fc.Args...))
	}
	if fc.Dir != "" {
		opts = append(opts, WithDir(fc.Dir))
	}
	for k, v := range fc.Env {
		opts = append(opts, WithEnv(k, v))
	}
	if b, err := ParseBackend(fc.Backend); err == nil {
		opts = append(opts, WithBackend(b))
	}
	if fc.GracePeriod.Duration > 0 {
		opts = append(opts, WithGracePeriod(fc.GracePeriod.Duration))
	}
	if fc.SettleDelay.Duration > 0 {
		opts = append(opts, WithSettleDelay(fc.SettleDelay.Duration))
	}
	if fc.StopTimeout.Duration > 0 {
		opts = append(opts, WithStopTimeout(fc.StopTimeout.Duration))
	}
	if fc.ReadyTimeout.Duration > 0 {
		opts = append(opts, WithReadyTimeout(fc.ReadyTimeout.Duration))
	}

	return opts
}
