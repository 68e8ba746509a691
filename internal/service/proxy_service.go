// Package service wires the domain packages into the request admission
// pipeline: parse, derive context, rate-limit, evaluate policy, forward,
// sign, audit.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mcpfirewall/sidecar/internal/adapter/outbound/upstream"
	"github.com/mcpfirewall/sidecar/internal/domain/audit"
	"github.com/mcpfirewall/sidecar/internal/domain/policy"
	"github.com/mcpfirewall/sidecar/internal/domain/ratelimit"
	"github.com/mcpfirewall/sidecar/internal/domain/signing"
)

// Upstream is the subset of upstream.Client the pipeline depends on,
// narrowed to an interface so tests can substitute a fake.
type Upstream interface {
	Forward(ctx context.Context, body []byte) (upstream.Response, error)
}

// MetricsRecorder is the subset of the optional Prometheus instruments the
// pipeline reports to. Defined here, not in the http adapter, so service
// never imports the transport layer; http.Metrics satisfies it.
type MetricsRecorder interface {
	ObserveOutcome(outcome string)
	ObservePolicyReason(reason string)
	ObserveUpstreamDuration(outcome string, d time.Duration)
}

// ProxyService executes the admission pipeline for one inbound request at
// a time; it holds no per-request mutable state itself.
type ProxyService struct {
	Policy   policy.FirewallPolicy
	Limiter  ratelimit.Limiter
	Verifier *signing.Verifier
	Signer   *signing.Signer
	Upstream Upstream
	Audit    audit.Sink
	Logger   *slog.Logger

	// Metrics is optional; a nil value disables instrumentation
	// (--metrics-addr unset).
	Metrics MetricsRecorder
}

// Outcome is the result of running the pipeline to completion: the status
// code, body and optional signature header the HTTP adapter should write
// back verbatim.
type Outcome struct {
	StatusCode      int
	Body            []byte
	SignatureHeader string
	HasSignatureHdr bool
}

type envelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type envelopeParams struct {
	Path *string `json:"path"`
}

// Inbound is the adapter-agnostic view of one inbound HTTP request that
// the pipeline needs.
type Inbound struct {
	Body             []byte
	Origin           *string
	ForwardedFor     *string
	RequestSignature string
}

func errorBody(code string) []byte {
	b, _ := json.Marshal(map[string]string{"error": code})
	return b
}

// Handle runs the full admission pipeline for one request.
func (s *ProxyService) Handle(ctx context.Context, in Inbound) Outcome {
	requestID := uuid.NewString()

	var env envelope
	if err := json.Unmarshal(in.Body, &env); err != nil || env.Method == "" {
		// Stage 1: malformed envelope. No audit event — no identity or
		// policy context exists yet.
		s.recordOutcome("invalid_envelope")
		return Outcome{StatusCode: 400, Body: errorBody("invalid_json_rpc_request")}
	}

	reqCtx := policy.RequestContext{
		Method:            env.Method,
		Origin:            in.Origin,
		BodyLen:           len(in.Body),
		HasValidSignature: s.Verifier.Verify(in.RequestSignature, in.Body),
	}
	if len(env.Params) > 0 {
		var params envelopeParams
		if err := json.Unmarshal(env.Params, &params); err == nil {
			reqCtx.Path = params.Path
		}
	}

	clientID := ratelimit.LocalClientID
	if in.ForwardedFor != nil && *in.ForwardedFor != "" {
		clientID = *in.ForwardedFor
	}
	rlKey := ratelimit.Key(clientID, env.Method)

	if result := s.Limiter.Allow(rlKey, s.Policy.RateLimitPerMinute); !result.Admitted {
		s.writeAudit(audit.Event{
			RequestID: requestID,
			Method:    env.Method,
			Allowed:   false,
			Reason:    policy.ReasonRateLimited,
			Origin:    in.Origin,
		})
		s.recordOutcome("rate_limited")
		return Outcome{StatusCode: 429, Body: errorBody("rate_limited")}
	}

	decision := policy.Evaluate(s.Policy, reqCtx)
	s.recordPolicyReason(decision.Reason)
	if !decision.Allow {
		s.writeAudit(audit.Event{
			RequestID: requestID,
			Method:    env.Method,
			Allowed:   false,
			Reason:    decision.Reason,
			Origin:    in.Origin,
		})
		s.recordOutcome("blocked_by_policy")
		return Outcome{StatusCode: 403, Body: errorBody("blocked_by_policy")}
	}

	upstreamStart := time.Now()
	resp, err := s.Upstream.Forward(ctx, in.Body)
	if err != nil {
		// Transport failure reaching upstream: deliberately not audited, even
		// though rate limiting and policy evaluation already admitted the
		// request; this is the one admitted path with no audit event.
		s.Logger.Warn("upstream unreachable", "request_id", requestID, "error", err)
		s.recordUpstreamDuration("error", time.Since(upstreamStart))
		s.recordOutcome("upstream_unreachable")
		return Outcome{StatusCode: 502, Body: errorBody("upstream_unreachable")}
	}
	s.recordUpstreamDuration("ok", time.Since(upstreamStart))

	status := resp.StatusCode
	s.writeAudit(audit.Event{
		RequestID:      requestID,
		Method:         env.Method,
		Allowed:        true,
		Reason:         policy.ReasonForwarded,
		Origin:         in.Origin,
		UpstreamStatus: &status,
	})
	s.recordOutcome("forwarded")

	out := Outcome{StatusCode: status, Body: []byte(resp.Body)}
	if s.Policy.SignResponses {
		if sig, ok := s.Signer.Sign(out.Body); ok {
			out.SignatureHeader = sig
			out.HasSignatureHdr = true
		}
	}
	return out
}

func (s *ProxyService) writeAudit(e audit.Event) {
	if err := s.Audit.Write(e); err != nil {
		s.Logger.Error("audit write failed", "request_id", e.RequestID, "error", err)
	}
}

func (s *ProxyService) recordOutcome(outcome string) {
	if s.Metrics != nil {
		s.Metrics.ObserveOutcome(outcome)
	}
}

func (s *ProxyService) recordPolicyReason(reason string) {
	if s.Metrics != nil {
		s.Metrics.ObservePolicyReason(reason)
	}
}

func (s *ProxyService) recordUpstreamDuration(outcome string, d time.Duration) {
	if s.Metrics != nil {
		s.Metrics.ObserveUpstreamDuration(outcome, d)
	}
}
