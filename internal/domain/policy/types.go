// Package policy defines the firewall's declarative access-control model
// and the pure function that evaluates a request against it.
package policy

// FirewallPolicy is the immutable, process-lifetime policy document. Zero
// values for every field mean "no restriction" except where a default is
// noted.
type FirewallPolicy struct {
	// AllowTools is the tool allowlist. Empty means no positive restriction.
	AllowTools map[string]struct{} `yaml:"allow_tools"`

	// DenyTools takes precedence over AllowTools.
	DenyTools map[string]struct{} `yaml:"deny_tools"`

	// AllowedPaths is an ordered list of string prefixes checked against
	// RequestContext.Path. Empty means no path restriction.
	AllowedPaths []string `yaml:"allowed_paths"`

	// MaxBodyBytes is the maximum accepted request body size. Default 65536.
	MaxBodyBytes int `yaml:"max_body_bytes"`

	// RequireOrigin gates the origin check.
	RequireOrigin bool `yaml:"require_origin"`

	// AllowedOrigins is checked only when RequireOrigin is true.
	AllowedOrigins map[string]struct{} `yaml:"allowed_origins"`

	// RequireSignature gates the detached-signature check.
	RequireSignature bool `yaml:"require_signature"`

	// RateLimitPerMinute is the per (client, method) admission cap.
	// Default 120. Zero means "block all".
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`

	// SignResponses gates response signing independently of whether a
	// signing key is configured.
	SignResponses bool `yaml:"sign_responses"`
}

// DefaultMaxBodyBytes is the default value of FirewallPolicy.MaxBodyBytes.
const DefaultMaxBodyBytes = 64 * 1024

// DefaultRateLimitPerMinute is the default value of
// FirewallPolicy.RateLimitPerMinute.
const DefaultRateLimitPerMinute = 120

// ApplyDefaults sets MaxBodyBytes and RateLimitPerMinute to their
// documented defaults unless the caller reports them as set, whatever
// their current value. These are the only fields with non-zero
// defaults; a policy document that explicitly sets rate_limit_per_minute
// to 0 means "block all" and must not be overwritten, so defaulting only
// applies when the field was never set in YAML (tracked by the caller).
func (p *FirewallPolicy) ApplyDefaults(maxBodySet, rateLimitSet bool) {
	if !maxBodySet {
		p.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if !rateLimitSet {
		p.RateLimitPerMinute = DefaultRateLimitPerMinute
	}
}

// RequestContext is the per-request value derived from an inbound request,
// consumed by Evaluate.
type RequestContext struct {
	// Method is the envelope's method field.
	Method string

	// Path is params.path when present and a string.
	Path *string

	// Origin is the origin header when present and valid UTF-8.
	Origin *string

	// BodyLen is the byte length of the raw request body.
	BodyLen int

	// HasValidSignature is true when no verifying key is configured, or
	// when the configured key validated the request signature.
	HasValidSignature bool
}

// Decision is the outcome of evaluating a RequestContext against a
// FirewallPolicy.
type Decision struct {
	Allow  bool
	Reason string
}

// The closed vocabulary of deny/allow reasons. These strings are the
// contract of the policy evaluator; they appear verbatim in audit records.
const (
	ReasonBodyTooLarge        = "body_too_large"
	ReasonOriginNotAllowed    = "origin_not_allowed"
	ReasonSignatureInvalid    = "signature_missing_or_invalid"
	ReasonToolDenied          = "tool_explicitly_denied"
	ReasonToolNotAllowlisted  = "tool_not_in_allowlist"
	ReasonPathNotAllowed      = "path_not_allowed"
	ReasonPolicyPass          = "policy_pass"
	ReasonRateLimited         = "rate_limited"
	ReasonForwarded           = "forwarded"
)
