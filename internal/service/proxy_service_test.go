package service

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/mcpfirewall/sidecar/internal/adapter/outbound/memory"
	"github.com/mcpfirewall/sidecar/internal/adapter/outbound/upstream"
	"github.com/mcpfirewall/sidecar/internal/domain/audit"
	"github.com/mcpfirewall/sidecar/internal/domain/policy"
	"github.com/mcpfirewall/sidecar/internal/domain/signing"
)

type recordingSink struct {
	events []audit.Event
}

func (r *recordingSink) Write(e audit.Event) error {
	r.events = append(r.events, e)
	return nil
}

type fakeUpstream struct {
	status int
	body   string
	err    error
}

func (f *fakeUpstream) Forward(ctx context.Context, body []byte) (upstream.Response, error) {
	if f.err != nil {
		return upstream.Response{}, f.err
	}
	return upstream.Response{StatusCode: f.status, Body: f.body}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func basePolicy() policy.FirewallPolicy {
	p := policy.FirewallPolicy{
		AllowedPaths:     []string{"/safe"},
		RequireOrigin:    true,
		AllowedOrigins:   map[string]struct{}{"agent://trusted": {}},
		RequireSignature: true,
		DenyTools:        map[string]struct{}{"tools.delete": {}},
		SignResponses:    true,
	}
	p.ApplyDefaults(false, false)
	return p
}

func newService(t *testing.T, p policy.FirewallPolicy, up Upstream, sink audit.Sink, pub ed25519.PublicKey, priv ed25519.PrivateKey) *ProxyService {
	t.Helper()
	return &ProxyService{
		Policy:   p,
		Limiter:  memory.NewRateLimiter(testLogger()),
		Verifier: signing.NewVerifier(pub),
		Signer:   signing.NewSigner(priv),
		Upstream: up,
		Audit:    sink,
		Logger:   testLogger(),
	}
}

func sign(priv ed25519.PrivateKey, body []byte) string {
	sig := ed25519.Sign(priv, body)
	return base64.StdEncoding.EncodeToString(sig)
}

func TestHandle_UntrustedOriginDenied(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	sink := &recordingSink{}
	body := []byte(`{"method":"tools.call","params":{"path":"/safe/x"}}`)
	svc := newService(t, basePolicy(), &fakeUpstream{}, sink, pub, priv)

	out := svc.Handle(context.Background(), Inbound{
		Body:             body,
		Origin:           strPtr("agent://evil"),
		RequestSignature: sign(priv, body),
	})

	if out.StatusCode != 403 {
		t.Fatalf("expected 403, got %d", out.StatusCode)
	}
	if len(sink.events) != 1 || sink.events[0].Reason != "origin_not_allowed" {
		t.Fatalf("expected one origin_not_allowed audit event, got %+v", sink.events)
	}
}

func TestHandle_DeniedToolBeatsAllow(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	p := basePolicy()
	p.AllowTools = map[string]struct{}{"tools.delete": {}}
	sink := &recordingSink{}
	body := []byte(`{"method":"tools.delete","params":{}}`)
	svc := newService(t, p, &fakeUpstream{}, sink, pub, priv)

	out := svc.Handle(context.Background(), Inbound{
		Body:             body,
		Origin:           strPtr("agent://trusted"),
		RequestSignature: sign(priv, body),
	})

	if out.StatusCode != 403 {
		t.Fatalf("expected 403, got %d", out.StatusCode)
	}
	if sink.events[0].Reason != "tool_explicitly_denied" {
		t.Fatalf("expected tool_explicitly_denied, got %+v", sink.events)
	}
}

func TestHandle_PathPrefixPassForwardsAndSigns(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	sink := &recordingSink{}
	body := []byte(`{"method":"tools.call","params":{"path":"/safe/file"}}`)
	up := &fakeUpstream{status: 200, body: `{"ok":true}`}
	svc := newService(t, basePolicy(), up, sink, pub, priv)

	out := svc.Handle(context.Background(), Inbound{
		Body:             body,
		Origin:           strPtr("agent://trusted"),
		RequestSignature: sign(priv, body),
	})

	if out.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", out.StatusCode)
	}
	if sink.events[0].Reason != "forwarded" {
		t.Fatalf("expected forwarded, got %+v", sink.events)
	}
	if !out.HasSignatureHdr {
		t.Fatal("expected a response signature")
	}
	sig, err := base64.StdEncoding.DecodeString(out.SignatureHeader)
	if err != nil {
		t.Fatal(err)
	}
	if !ed25519.Verify(pub, out.Body, sig) {
		t.Fatal("response signature does not verify against response body")
	}
}

func TestHandle_OversizeBodyDenied(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	p := basePolicy()
	p.MaxBodyBytes = 32
	sink := &recordingSink{}
	padding := make([]byte, 200)
	for i := range padding {
		padding[i] = 'x'
	}
	bodyMap := map[string]interface{}{
		"method": "tools.call",
		"params": map[string]string{"path": "/safe/x", "pad": string(padding)},
	}
	body, _ := json.Marshal(bodyMap)
	svc := newService(t, p, &fakeUpstream{}, sink, pub, priv)

	out := svc.Handle(context.Background(), Inbound{
		Body:             body,
		Origin:           strPtr("agent://trusted"),
		RequestSignature: sign(priv, body),
	})

	if out.StatusCode != 403 {
		t.Fatalf("expected 403, got %d", out.StatusCode)
	}
	if sink.events[0].Reason != "body_too_large" {
		t.Fatalf("expected body_too_large, got %+v", sink.events)
	}
}

func TestHandle_RateLimitSequence(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	p := basePolicy()
	p.RateLimitPerMinute = 5
	sink := &recordingSink{}
	body := []byte(`{"method":"tools.call","params":{"path":"/safe/x"}}`)
	limiter := memory.NewRateLimiter(testLogger())
	svc := &ProxyService{
		Policy:   p,
		Limiter:  limiter,
		Verifier: signing.NewVerifier(pub),
		Signer:   signing.NewSigner(priv),
		Upstream: &fakeUpstream{status: 200, body: `{}`},
		Audit:    sink,
		Logger:   testLogger(),
	}

	in := Inbound{Body: body, Origin: strPtr("agent://trusted"), RequestSignature: sign(priv, body)}

	for i := 0; i < 5; i++ {
		out := svc.Handle(context.Background(), in)
		if out.StatusCode != 200 {
			t.Fatalf("request %d: expected 200, got %d", i+1, out.StatusCode)
		}
	}

	out := svc.Handle(context.Background(), in)
	if out.StatusCode != 429 {
		t.Fatalf("expected 429 on 6th request, got %d", out.StatusCode)
	}
	if sink.events[len(sink.events)-1].Reason != "rate_limited" {
		t.Fatalf("expected rate_limited audit, got %+v", sink.events[len(sink.events)-1])
	}
}

func TestHandle_MalformedEnvelopeNotAudited(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	sink := &recordingSink{}
	svc := newService(t, basePolicy(), &fakeUpstream{}, sink, pub, priv)

	out := svc.Handle(context.Background(), Inbound{Body: []byte(`not json`)})

	if out.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", out.StatusCode)
	}
	if len(sink.events) != 0 {
		t.Fatalf("expected no audit event for malformed envelope, got %+v", sink.events)
	}
}

func TestHandle_UpstreamUnreachableNotAudited(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	sink := &recordingSink{}
	body := []byte(`{"method":"tools.call","params":{"path":"/safe/x"}}`)
	svc := newService(t, basePolicy(), &fakeUpstream{err: context.DeadlineExceeded}, sink, pub, priv)

	out := svc.Handle(context.Background(), Inbound{
		Body:             body,
		Origin:           strPtr("agent://trusted"),
		RequestSignature: sign(priv, body),
	})

	if out.StatusCode != 502 {
		t.Fatalf("expected 502, got %d", out.StatusCode)
	}
	if len(sink.events) != 0 {
		t.Fatalf("expected no audit event for upstream failure, got %+v", sink.events)
	}
}
