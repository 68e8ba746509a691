package config

import (
	"strings"

	"github.com/spf13/viper"
)

// InitEnv wires environment-variable overrides for server settings, so
// e.g. MCP_FIREWALL_UPSTREAM overrides --upstream without touching the
// command line.
func InitEnv(v *viper.Viper) {
	v.SetEnvPrefix("MCP_FIREWALL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}
