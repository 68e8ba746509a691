// Package signing implements the firewall's detached Ed25519 signature
// verification (over request bodies) and response signing.
package signing

import (
	"crypto/ed25519"
	"encoding/base64"
)

// Header names for the signature-bearing headers.
const (
	RequestSignatureHeader  = "x-mcp-signature"
	ResponseSignatureHeader = "x-mcp-firewall-signature"
)

// Verifier verifies a detached signature over a request body. A nil
// Verifier means signature checks are disabled for the deployment: with
// no verifying key configured, every body is treated as validly signed.
type Verifier struct {
	key ed25519.PublicKey
}

// NewVerifier wraps a configured verifying key. Pass a nil/empty key to
// get a Verifier whose Verify always returns true.
func NewVerifier(key ed25519.PublicKey) *Verifier {
	if len(key) == 0 {
		return nil
	}
	return &Verifier{key: key}
}

// Verify checks headerValue (the base64-encoded x-mcp-signature header, or
// "" if absent) against body. Every failure mode — absent header, bad
// base64, wrong-length signature, cryptographic mismatch — yields false;
// Verify never panics or returns an error.
func (v *Verifier) Verify(headerValue string, body []byte) bool {
	if v == nil {
		return true
	}
	if headerValue == "" {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(headerValue)
	if err != nil {
		return false
	}
	if len(sig) != ed25519.SignatureSize {
		return false
	}

	return ed25519.Verify(v.key, body, sig)
}

// Signer signs response bodies. A nil Signer means no signing key is
// configured; Sign then returns ("", false) unconditionally, regardless
// of the policy's sign_responses flag — the caller is responsible for
// also checking that flag.
type Signer struct {
	key ed25519.PrivateKey
}

// NewSigner wraps a configured signing key. Pass a nil/empty key to get a
// Signer whose Sign always reports ok=false.
func NewSigner(key ed25519.PrivateKey) *Signer {
	if len(key) == 0 {
		return nil
	}
	return &Signer{key: key}
}

// Sign computes a base64-encoded Ed25519 signature over body.
func (s *Signer) Sign(body []byte) (signature string, ok bool) {
	if s == nil {
		return "", false
	}
	sig := ed25519.Sign(s.key, body)
	return base64.StdEncoding.EncodeToString(sig), true
}
