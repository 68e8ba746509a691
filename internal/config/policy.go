// Package config loads the declarative policy document and runtime server
// settings the firewall core consumes, and decodes the hex-encoded Ed25519
// key material. Loading and validation live here so the domain and service
// packages only ever see an already-validated FirewallPolicy or
// ServerSettings value.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mcpfirewall/sidecar/internal/domain/policy"
)

// rawFirewallPolicy mirrors FirewallPolicy but uses pointers for the two
// fields with non-zero defaults, so the loader can tell "unset" apart from
// "explicitly zero" (a policy document with rate_limit_per_minute: 0 means
// "block all", not "use the default of 120").
type rawFirewallPolicy struct {
	AllowTools         []string `yaml:"allow_tools"`
	DenyTools          []string `yaml:"deny_tools"`
	AllowedPaths       []string `yaml:"allowed_paths"`
	MaxBodyBytes       *int     `yaml:"max_body_bytes" validate:"omitempty,min=0"`
	RequireOrigin      bool     `yaml:"require_origin"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	RequireSignature   bool     `yaml:"require_signature"`
	RateLimitPerMinute *int     `yaml:"rate_limit_per_minute" validate:"omitempty,min=0"`
	SignResponses      bool     `yaml:"sign_responses"`
}

type rawPolicyFile struct {
	Firewall rawFirewallPolicy `yaml:"firewall" validate:"required"`
}

// LoadPolicy reads and parses the declarative policy document at path.
// Unknown fields are ignored; missing fields take the defaults applied by
// policy.FirewallPolicy.ApplyDefaults.
func LoadPolicy(path string) (policy.FirewallPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return policy.FirewallPolicy{}, fmt.Errorf("read policy file: %w", err)
	}

	var raw rawPolicyFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return policy.FirewallPolicy{}, fmt.Errorf("invalid policy yaml: %w", err)
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(raw); err != nil {
		return policy.FirewallPolicy{}, fmt.Errorf("policy validation failed: %w", err)
	}

	p := policy.FirewallPolicy{
		AllowTools:       toSet(raw.Firewall.AllowTools),
		DenyTools:        toSet(raw.Firewall.DenyTools),
		AllowedPaths:     raw.Firewall.AllowedPaths,
		RequireOrigin:    raw.Firewall.RequireOrigin,
		AllowedOrigins:   toSet(raw.Firewall.AllowedOrigins),
		RequireSignature: raw.Firewall.RequireSignature,
		SignResponses:    raw.Firewall.SignResponses,
	}
	if raw.Firewall.MaxBodyBytes != nil {
		p.MaxBodyBytes = *raw.Firewall.MaxBodyBytes
	}
	if raw.Firewall.RateLimitPerMinute != nil {
		p.RateLimitPerMinute = *raw.Firewall.RateLimitPerMinute
	}
	p.ApplyDefaults(raw.Firewall.MaxBodyBytes != nil, raw.Firewall.RateLimitPerMinute != nil)

	return p, nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
