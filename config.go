package rendercore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml/v2"
)

// Configuration errors.
var (
	// ErrInvalidConfig is returned when a configuration value is out of range.
	ErrInvalidConfig = errors.New("rendercore: invalid config")
)

// Creation policies accepted by Config.CreationPolicy.
const (
	// PolicyLazy creates device resources on the active device only and
	// materializes them on other devices on first use.
	PolicyLazy = "lazy"

	// PolicyEager creates device resources on every live device.
	PolicyEager = "eager"
)

// DefaultResetBackoff is the pause after a failed device reset.
const DefaultResetBackoff = 50 * time.Millisecond

// DefaultDiagnosticAdapter is the adapter description marker that selects
// a diagnostic device when a surface asks for one.
const DefaultDiagnosticAdapter = "PerfHUD"

// Duration is a time.Duration that reads and writes TOML strings such as "50ms".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MultiheadRule disables multi-head device creation on platform versions
// matching Constraint.
type MultiheadRule struct {
	// Constraint is a semantic version constraint, e.g. ">= 6.0.6001, <= 6.0.6002".
	Constraint string `toml:"constraint"`

	// VSyncOnly restricts the rule to surfaces that request vertical sync.
	VSyncOnly bool `toml:"vsync_only"`

	// Reason is logged when the rule disables multi-head.
	Reason string `toml:"reason"`
}

// MultiheadConfig controls adapter-group device creation.
type MultiheadConfig struct {
	Enabled         bool            `toml:"enabled"`
	PlatformVersion string          `toml:"platform_version"`
	Rules           []MultiheadRule `toml:"rules"`
}

// Config holds the tunables of the device lifecycle core.
type Config struct {
	// Backend names the registered backend to open. Empty selects the
	// highest priority available backend.
	Backend string `toml:"backend"`

	// CreationPolicy is PolicyLazy or PolicyEager.
	CreationPolicy string `toml:"creation_policy"`

	// ResetBackoff is slept, outside the device lock, after a failed reset.
	ResetBackoff Duration `toml:"reset_backoff"`

	// FPUPreserve asks the native API not to change floating point state.
	FPUPreserve bool `toml:"fpu_preserve"`

	// Multithreaded asks the native API for a thread-safe device.
	Multithreaded bool `toml:"multithreaded"`

	// DiagnosticAdapter is matched against adapter names when a surface
	// requests a diagnostic device.
	DiagnosticAdapter string `toml:"diagnostic_adapter"`

	Multihead MultiheadConfig `toml:"multihead"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		CreationPolicy:    PolicyLazy,
		ResetBackoff:      Duration(DefaultResetBackoff),
		DiagnosticAdapter: DefaultDiagnosticAdapter,
		Multihead: MultiheadConfig{
			Enabled: true,
		},
	}
}

// ParseConfig decodes TOML data over DefaultConfig. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("rendercore: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses the TOML file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("rendercore: read config: %w", err)
	}
	return ParseConfig(data)
}

// Encode writes cfg as TOML.
func (c Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("rendercore: encode config: %w", err)
	}
	return data, nil
}

// Validate reports the first out-of-range value.
func (c Config) Validate() error {
	switch c.CreationPolicy {
	case PolicyLazy, PolicyEager:
	default:
		return fmt.Errorf("%w: creation_policy %q", ErrInvalidConfig, c.CreationPolicy)
	}
	if c.ResetBackoff < 0 {
		return fmt.Errorf("%w: negative reset_backoff", ErrInvalidConfig)
	}
	if v := c.Multihead.PlatformVersion; v != "" {
		if _, err := semver.NewVersion(v); err != nil {
			return fmt.Errorf("%w: platform_version %q: %w", ErrInvalidConfig, v, err)
		}
	}
	for i, r := range c.Multihead.Rules {
		if _, err := semver.NewConstraint(r.Constraint); err != nil {
			return fmt.Errorf("%w: multihead rule %d: %w", ErrInvalidConfig, i, err)
		}
	}
	return nil
}
