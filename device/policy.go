package device

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/gogpu/rendercore"
)

// CompatibilityPolicy decides whether a full-screen surface may be driven
// by an adapter-group device together with the other heads of its group.
type CompatibilityPolicy interface {
	// AllowMultihead reports whether s may join a multi-head device. When
	// it may not, reason explains why.
	AllowMultihead(s RenderSurface) (allowed bool, reason string)
}

// PolicyFunc adapts a function to CompatibilityPolicy.
type PolicyFunc func(s RenderSurface) (bool, string)

// AllowMultihead implements CompatibilityPolicy.
func (f PolicyFunc) AllowMultihead(s RenderSurface) (bool, string) { return f(s) }

// AllowAllMultihead permits multi-head devices unconditionally.
var AllowAllMultihead CompatibilityPolicy = PolicyFunc(func(RenderSurface) (bool, string) { return true, "" })

type versionRule struct {
	constraint *semver.Constraints
	vsyncOnly  bool
	reason     string
}

// VersionPolicy disables multi-head devices on platform versions matched
// by configured rules.
type VersionPolicy struct {
	enabled bool
	version *semver.Version
	rules   []versionRule
}

// NewVersionPolicy builds a policy from cfg. Without a platform version
// no rule matches.
func NewVersionPolicy(cfg rendercore.MultiheadConfig) (*VersionPolicy, error) {
	p := &VersionPolicy{enabled: cfg.Enabled}
	if cfg.PlatformVersion != "" {
		v, err := semver.NewVersion(cfg.PlatformVersion)
		if err != nil {
			return nil, fmt.Errorf("device: platform version %q: %w", cfg.PlatformVersion, err)
		}
		p.version = v
	}
	for i, r := range cfg.Rules {
		c, err := semver.NewConstraint(r.Constraint)
		if err != nil {
			return nil, fmt.Errorf("device: multihead rule %d: %w", i, err)
		}
		p.rules = append(p.rules, versionRule{constraint: c, vsyncOnly: r.VSyncOnly, reason: r.Reason})
	}
	return p, nil
}

// AllowMultihead implements CompatibilityPolicy.
func (p *VersionPolicy) AllowMultihead(s RenderSurface) (bool, string) {
	if !p.enabled {
		return false, "multi-head disabled by configuration"
	}
	if p.version == nil {
		return true, ""
	}
	for _, r := range p.rules {
		if r.vsyncOnly && !s.IsVSync() {
			continue
		}
		if r.constraint.Check(p.version) {
			reason := r.reason
			if reason == "" {
				reason = "platform " + p.version.String() + " matches " + r.constraint.String()
			}
			return false, reason
		}
	}
	return true, ""
}
