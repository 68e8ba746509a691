// Command mcp-firewall runs the policy-enforcing reverse proxy sidecar for
// a JSON-RPC tool-invocation channel.
package main

import "github.com/mcpfirewall/sidecar/cmd/mcp-firewall/cmd"

func main() {
	cmd.Execute()
}
