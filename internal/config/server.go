package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ServerSettings are the runtime settings for the "run" subcommand: where
// to listen, where to forward admitted traffic, and where to find the
// policy document, audit log and key material. Unlike the policy
// document these are supplied as flags/env vars, not YAML.
type ServerSettings struct {
	ListenAddr   string `mapstructure:"listen" validate:"required,hostname_port"`
	UpstreamURL  string `mapstructure:"upstream" validate:"required,url"`
	PolicyPath   string `mapstructure:"policy" validate:"required"`
	AuditLogPath string `mapstructure:"audit-log" validate:"required"`
	VerifyKeyHex string `mapstructure:"verify-key" validate:"omitempty,hexadecimal,len=64"`
	SignKeyHex   string `mapstructure:"sign-key" validate:"omitempty,hexadecimal,len=64"`
	MetricsAddr  string `mapstructure:"metrics-addr" validate:"omitempty,hostname_port"`
}

// BindServerFlags registers the flags shared by "run" and "doctor" on fs and
// binds them into v, so MCP_FIREWALL_-prefixed environment variables can
// override them without touching the command line.
func BindServerFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	fs.String("listen", "127.0.0.1:8787", "address the sidecar listens on")
	fs.String("upstream", "", "base URL of the upstream MCP service (required)")
	fs.String("policy", "", "path to the firewall policy document (required)")
	fs.String("audit-log", "audit.jsonl", "path to the append-only audit log")
	fs.String("verify-key", "", "hex-encoded Ed25519 public key used to verify request signatures")
	fs.String("sign-key", "", "hex-encoded Ed25519 seed used to sign forwarded responses")
	fs.String("metrics-addr", "", "address to serve Prometheus metrics on; empty disables metrics")

	for _, name := range []string{"listen", "upstream", "policy", "audit-log", "verify-key", "sign-key", "metrics-addr"} {
		if err := v.BindPFlag(name, fs.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// LoadServerSettings decodes v's bound flags/env vars into a validated
// ServerSettings.
func LoadServerSettings(v *viper.Viper) (ServerSettings, error) {
	var s ServerSettings
	if err := v.Unmarshal(&s); err != nil {
		return ServerSettings{}, fmt.Errorf("decode server settings: %w", err)
	}

	val := validator.New(validator.WithRequiredStructEnabled())
	if err := val.Struct(s); err != nil {
		return ServerSettings{}, fmt.Errorf("invalid server settings: %w", err)
	}
	return s, nil
}
