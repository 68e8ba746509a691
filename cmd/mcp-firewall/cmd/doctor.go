package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpfirewall/sidecar/internal/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Validate configuration, policy and key material without starting the server",
	Long: `Doctor loads the same server settings and policy document "run" would, plus
decodes any configured keys, and reports the first problem found — useful in
CI or before a deploy to catch a broken policy file or malformed key without
having to bind a port.`,
	RunE: runDoctor,
}

func init() {
	if err := config.BindServerFlags(doctorCmd.Flags(), appViper); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	// run's init binds the same appViper keys to its own flags after this
	// file's init does; rebind them to doctor's flags before loading.
	if err := appViper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	settings, err := config.LoadServerSettings(appViper)
	if err != nil {
		return fmt.Errorf("server settings: %w", err)
	}
	fmt.Println("[ok] server settings valid")

	p, err := config.LoadPolicy(settings.PolicyPath)
	if err != nil {
		return fmt.Errorf("policy document: %w", err)
	}
	fmt.Printf("[ok] policy document valid: %s\n", settings.PolicyPath)
	fmt.Printf("     max_body_bytes=%d rate_limit_per_minute=%d require_origin=%v require_signature=%v sign_responses=%v\n",
		p.MaxBodyBytes, p.RateLimitPerMinute, p.RequireOrigin, p.RequireSignature, p.SignResponses)

	if settings.VerifyKeyHex != "" {
		if _, err := config.DecodeVerifyKey(settings.VerifyKeyHex); err != nil {
			return fmt.Errorf("verify key: %w", err)
		}
		fmt.Println("[ok] verify key decodes")
	} else {
		fmt.Println("[warn] no verify key configured — signature checks are disabled (has_valid_signature defaults true)")
	}

	if settings.SignKeyHex != "" {
		if _, err := config.DecodeSignKey(settings.SignKeyHex); err != nil {
			return fmt.Errorf("sign key: %w", err)
		}
		fmt.Println("[ok] sign key decodes")
	} else if p.SignResponses {
		fmt.Println("[warn] sign_responses is true but no sign key is configured — responses will not be signed")
	}

	if dir := parentDir(settings.AuditLogPath); dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return fmt.Errorf("audit log directory %s: %w", dir, err)
		}
	}
	fmt.Printf("[ok] audit log path reachable: %s\n", settings.AuditLogPath)

	client := &http.Client{Timeout: 3 * time.Second}
	if resp, err := client.Get(settings.UpstreamURL); err != nil {
		fmt.Printf("[warn] upstream %s not reachable: %v\n", settings.UpstreamURL, err)
	} else {
		resp.Body.Close()
		fmt.Printf("[ok] upstream %s reachable (status %d)\n", settings.UpstreamURL, resp.StatusCode)
	}

	return nil
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
