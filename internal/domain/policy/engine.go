package policy

import "strings"

// Evaluate is the pure function (Policy, RequestContext) -> Decision. Checks
// run in the order below; the first failing check determines the deny
// reason. Equal inputs always yield equal output.
func Evaluate(p FirewallPolicy, req RequestContext) Decision {
	if req.BodyLen > p.MaxBodyBytes {
		return deny(ReasonBodyTooLarge)
	}

	if p.RequireOrigin {
		if req.Origin == nil {
			return deny(ReasonOriginNotAllowed)
		}
		if _, ok := p.AllowedOrigins[*req.Origin]; !ok {
			return deny(ReasonOriginNotAllowed)
		}
	}

	if p.RequireSignature && !req.HasValidSignature {
		return deny(ReasonSignatureInvalid)
	}

	if _, denied := p.DenyTools[req.Method]; denied {
		return deny(ReasonToolDenied)
	}

	if len(p.AllowTools) > 0 {
		if _, allowed := p.AllowTools[req.Method]; !allowed {
			return deny(ReasonToolNotAllowlisted)
		}
	}

	if len(p.AllowedPaths) > 0 && req.Path != nil {
		if !anyPrefix(p.AllowedPaths, *req.Path) {
			return deny(ReasonPathNotAllowed)
		}
	}

	return allow(ReasonPolicyPass)
}

// anyPrefix reports whether any element of prefixes is a raw string prefix
// of path. Intentionally not segment-aware: "/safe" matches "/safehouse".
// Do not "fix" into segment-aware matching — operators write allowlist
// entries with a trailing slash when segment boundaries matter.
func anyPrefix(prefixes []string, path string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func allow(reason string) Decision {
	return Decision{Allow: true, Reason: reason}
}

func deny(reason string) Decision {
	return Decision{Allow: false, Reason: reason}
}
