package device

import (
	"time"

	"github.com/gogpu/rendercore"
)

// Option configures a Manager during creation.
//
// Example:
//
//	mgr, err := device.NewManager(b, reg,
//		device.WithConfig(cfg),
//		device.WithCompatibilityPolicy(device.AllowAllMultihead),
//	)
type Option func(*options)

// options holds optional configuration for Manager creation.
type options struct {
	cfg    rendercore.Config
	policy CompatibilityPolicy
	sleep  func(time.Duration)
}

// defaultOptions returns the default manager options.
func defaultOptions() options {
	return options{
		cfg:   rendercore.DefaultConfig(),
		sleep: time.Sleep,
	}
}

// WithConfig sets the configuration. The multi-head rules in cfg build the
// default CompatibilityPolicy unless WithCompatibilityPolicy is also given.
func WithConfig(cfg rendercore.Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithCompatibilityPolicy replaces the multi-head policy built from the
// configuration.
func WithCompatibilityPolicy(p CompatibilityPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithSleep replaces the function used for the reset back-off. Tests pass a
// recorder instead of time.Sleep.
func WithSleep(sleep func(time.Duration)) Option {
	return func(o *options) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}
