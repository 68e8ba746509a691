package cmd

import (
	"crypto/ed25519"
	"fmt"
	"log/slog"

	outboundaudit "github.com/mcpfirewall/sidecar/internal/adapter/outbound/audit"
	"github.com/mcpfirewall/sidecar/internal/adapter/outbound/memory"
	"github.com/mcpfirewall/sidecar/internal/adapter/outbound/upstream"
	"github.com/mcpfirewall/sidecar/internal/config"
	"github.com/mcpfirewall/sidecar/internal/domain/audit"
	"github.com/mcpfirewall/sidecar/internal/domain/signing"
	"github.com/mcpfirewall/sidecar/internal/service"
)

// buildProxyService assembles a ProxyService from settings, wiring every
// outbound adapter (rate limiter, signing, upstream client, audit sink)
// for the run command. metrics may be nil.
func buildProxyService(settings config.ServerSettings, logger *slog.Logger, metrics service.MetricsRecorder) (*service.ProxyService, audit.Sink, error) {
	p, err := config.LoadPolicy(settings.PolicyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load policy: %w", err)
	}

	var verifyKey ed25519.PublicKey
	if settings.VerifyKeyHex != "" {
		verifyKey, err = config.DecodeVerifyKey(settings.VerifyKeyHex)
		if err != nil {
			return nil, nil, fmt.Errorf("decode verify key: %w", err)
		}
	}

	var signKey ed25519.PrivateKey
	if settings.SignKeyHex != "" {
		signKey, err = config.DecodeSignKey(settings.SignKeyHex)
		if err != nil {
			return nil, nil, fmt.Errorf("decode sign key: %w", err)
		}
	}

	sink, err := outboundaudit.NewFileSink(settings.AuditLogPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log: %w", err)
	}

	proxy := &service.ProxyService{
		Policy:   p,
		Limiter:  memory.NewRateLimiter(logger),
		Verifier: signing.NewVerifier(verifyKey),
		Signer:   signing.NewSigner(signKey),
		Upstream: upstream.New(settings.UpstreamURL),
		Audit:    sink,
		Logger:   logger,
		Metrics:  metrics,
	}

	logger.Info("policy loaded",
		"path", settings.PolicyPath,
		"max_body_bytes", p.MaxBodyBytes,
		"rate_limit_per_minute", p.RateLimitPerMinute,
		"require_origin", p.RequireOrigin,
		"require_signature", p.RequireSignature,
		"sign_responses", p.SignResponses,
	)

	return proxy, sink, nil
}
