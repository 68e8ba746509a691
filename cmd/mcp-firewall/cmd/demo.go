package cmd

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/spf13/cobra"

	outboundaudit "github.com/mcpfirewall/sidecar/internal/adapter/outbound/audit"
	"github.com/mcpfirewall/sidecar/internal/adapter/outbound/memory"
	"github.com/mcpfirewall/sidecar/internal/adapter/outbound/upstream"
	"github.com/mcpfirewall/sidecar/internal/domain/policy"
	"github.com/mcpfirewall/sidecar/internal/domain/signing"
	"github.com/mcpfirewall/sidecar/internal/service"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a self-contained demonstration of the admission pipeline",
	Long: `Demo spins up an in-process upstream stub and fires a handful of
representative requests at a freshly built ProxyService, printing the
outcome of each — a quick way to see the pipeline's behavior without
standing up a real upstream or writing a policy file.`,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	upstreamServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	}))
	defer upstreamServer.Close()

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return err
	}

	auditFile, err := os.CreateTemp("", "mcp-firewall-demo-audit-*.jsonl")
	if err != nil {
		return err
	}
	_ = auditFile.Close()
	defer os.Remove(auditFile.Name())

	sink, err := outboundaudit.NewFileSink(auditFile.Name(), logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	p := policy.FirewallPolicy{
		AllowedPaths:     []string{"/safe"},
		RequireSignature: true,
		DenyTools:        map[string]struct{}{"tools.delete": {}},
	}
	p.ApplyDefaults(false, false)

	proxy := &service.ProxyService{
		Policy:   p,
		Limiter:  memory.NewRateLimiter(logger),
		Verifier: signing.NewVerifier(pub),
		Signer:   signing.NewSigner(priv),
		Upstream: upstream.New(upstreamServer.URL),
		Audit:    sink,
		Logger:   logger,
	}

	scenarios := []struct {
		name string
		body string
	}{
		{"allowed tool, signed, under path allowlist", `{"method":"tools.call","params":{"path":"/safe/file"}}`},
		{"explicitly denied tool", `{"method":"tools.delete","params":{}}`},
		{"path outside allowlist", `{"method":"tools.call","params":{"path":"/etc/passwd"}}`},
		{"malformed envelope", `not-json`},
	}

	fmt.Println("mcp-firewall demo — admission pipeline walkthrough")
	fmt.Println("upstream:", upstreamServer.URL)
	fmt.Println()

	for _, sc := range scenarios {
		body := []byte(sc.body)
		sig := ""
		if json.Valid(body) {
			sig = base64.StdEncoding.EncodeToString(ed25519.Sign(priv, body))
		}
		out := proxy.Handle(context.Background(), service.Inbound{Body: body, RequestSignature: sig})
		fmt.Printf("  %-40s -> %d %s\n", sc.name, out.StatusCode, string(out.Body))
	}

	return nil
}
