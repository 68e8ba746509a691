// Package http provides the HTTP transport adapter: the single POST /mcp
// route, plus the ambient /healthz and (optional) /metrics endpoints.
package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/mcpfirewall/sidecar/internal/domain/signing"
	"github.com/mcpfirewall/sidecar/internal/service"
)

// maxRequestBodyBytes bounds how much of the request body the transport
// layer will read before the policy's own max_body_bytes check even runs,
// protecting the process from unbounded memory growth on a hostile client.
// Chosen well above any sane policy limit so it never masks a genuine
// body_too_large decision.
const maxRequestBodyBytes = 8 << 20

// NewMux builds the sidecar's HTTP handler: POST /mcp wired to proxy, plus
// GET /healthz.
func NewMux(proxy *service.ProxyService) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpHandler(proxy))
	mux.Handle("/healthz", healthHandler())
	return mux
}

// mcpHandler adapts one inbound HTTP request into a service.Inbound value,
// runs the admission pipeline, and writes the resulting Outcome back
// verbatim.
func mcpHandler(proxy *service.ProxyService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
		defer func() { _ = r.Body.Close() }()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json_rpc_request")
			return
		}

		in := service.Inbound{
			Body:             body,
			RequestSignature: r.Header.Get(signing.RequestSignatureHeader),
		}
		if origin := r.Header.Get("origin"); origin != "" {
			in.Origin = &origin
		}
		if fwd := firstForwardedFor(r.Header.Get("x-forwarded-for")); fwd != "" {
			in.ForwardedFor = &fwd
		}

		out := proxy.Handle(r.Context(), in)

		w.Header().Set("content-type", "application/json")
		if out.HasSignatureHdr {
			w.Header().Set(signing.ResponseSignatureHeader, out.SignatureHeader)
		}
		w.WriteHeader(out.StatusCode)
		_, _ = w.Write(out.Body)
	})
}

// firstForwardedFor returns the first comma-separated value of an
// x-forwarded-for header, used as the rate-limit bucket's client id.
func firstForwardedFor(header string) string {
	if header == "" {
		return ""
	}
	for i, c := range header {
		if c == ',' {
			return trimSpace(header[:i])
		}
	}
	return trimSpace(header)
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
