package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/keygate/keygate/internal/model"
)

// keyCmdOpts holds the connection flags shared by all key subcommands. The
// key commands are remote clients: they speak the HTTP API of a running
// keygate server rather than touching state directly.
type keyCmdOpts struct {
	server string
	secret string
}

func (o *keyCmdOpts) resolveSecret() string {
	if o.secret != "" {
		return o.secret
	}
	if env := os.Getenv("KEYGATE_ADMIN_SECRET"); env != "" {
		return env
	}
	return viper.GetString("auth.admin_secret")
}

func newKeyCmd() *cobra.Command {
	opts := &keyCmdOpts{}

	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage access keys on a running server",
		Long:  "Mint, list, inspect, and delete access keys by calling a running keygate server.",
	}

	cmd.PersistentFlags().StringVar(&opts.server, "server", "http://localhost:8080", "Base URL of the keygate server")
	cmd.PersistentFlags().StringVar(&opts.secret, "secret", "", "Admin secret (default: KEYGATE_ADMIN_SECRET env or auth.admin_secret)")

	cmd.AddCommand(newKeyCreateCmd(opts))
	cmd.AddCommand(newKeyListCmd(opts))
	cmd.AddCommand(newKeyInfoCmd(opts))
	cmd.AddCommand(newKeyDeleteCmd(opts))

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd(opts *keyCmdOpts) *cobra.Command {
	var (
		duration int
		count    int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint one or more keys",
		Example: `  keygate key create
  keygate key create --duration 72
  keygate key create --count 25 --duration 48`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(opts, count, duration)
		},
	}

	cmd.Flags().IntVar(&duration, "duration", 0, "Validity window in hours (default 24)")
	cmd.Flags().IntVar(&count, "count", 1, "Number of keys to mint (max 100)")

	return cmd
}

func runKeyCreate(opts *keyCmdOpts, count, duration int) error {
	if count <= 1 {
		var resp model.CreateKeyResponse
		payload := map[string]interface{}{
			"password": opts.resolveSecret(),
			"duration": duration,
		}
		if err := postJSON(opts.server+"/create", payload, &resp); err != nil {
			return err
		}

		fmt.Println("Key created:")
		fmt.Println()
		fmt.Printf("  Key:     %s\n", resp.Key)
		fmt.Printf("  Expires: %s\n", time.UnixMilli(resp.Expiration).UTC().Format(time.RFC3339))
		fmt.Printf("  Valid:   %s\n", resp.Duration)
		return nil
	}

	var resp model.BulkCreateResponse
	payload := map[string]interface{}{
		"password": opts.resolveSecret(),
		"count":    count,
		"duration": duration,
	}
	if err := postJSON(opts.server+"/create-bulk", payload, &resp); err != nil {
		return err
	}

	fmt.Printf("Created %d keys:\n\n", resp.Count)
	for _, k := range resp.Keys {
		fmt.Printf("  %s\n", k)
	}
	return nil
}

// ---------- key list ----------

func newKeyListCmd(opts *keyCmdOpts) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all live keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(opts, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(opts *keyCmdOpts, jsonOutput bool) error {
	var resp model.ListKeysResponse
	payload := map[string]interface{}{"password": opts.resolveSecret()}
	if err := postJSON(opts.server+"/list", payload, &resp); err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp.Keys)
	}

	if resp.Count == 0 {
		fmt.Println("No live keys. Use 'keygate key create' to mint one.")
		return nil
	}

	fmt.Printf("%-20s %-6s %-16s %-8s %-10s\n", "KEY", "USED", "USERNAME", "EXPIRED", "TIME LEFT")
	fmt.Printf("%-20s %-6s %-16s %-8s %-10s\n", "---", "----", "--------", "-------", "---------")
	for _, k := range resp.Keys {
		used := "no"
		if k.Used {
			used = "yes"
		}
		expired := "no"
		if k.Expired {
			expired = "yes"
		}
		username := "-"
		if k.Username != nil && *k.Username != "" {
			username = *k.Username
		}
		fmt.Printf("%-20s %-6s %-16s %-8s %ds\n", k.Key, used, username, expired, k.TimeLeft)
	}

	return nil
}

// ---------- key info ----------

func newKeyInfoCmd(opts *keyCmdOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <key>",
		Short: "Inspect one key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyInfo(opts, args[0])
		},
	}

	return cmd
}

func runKeyInfo(opts *keyCmdOpts, key string) error {
	resp, err := http.Get(opts.server + "/info/" + key)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("key %q not found", key)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var info model.KeyInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	used := "no"
	if info.Used {
		used = "yes"
	}
	fmt.Printf("  Key:       %s\n", info.Key)
	fmt.Printf("  Used:      %s\n", used)
	fmt.Printf("  Username:  %s\n", info.Username)
	fmt.Printf("  Created:   %s\n", info.Created)
	fmt.Printf("  Expires:   %s\n", info.Expiration)
	fmt.Printf("  Time left: %s\n", info.TimeLeft)
	fmt.Printf("  Expired:   %v\n", info.Expired)
	return nil
}

// ---------- key delete ----------

func newKeyDeleteCmd(opts *keyCmdOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key",
		Long:  "Delete a key immediately. The key stops verifying on any device.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyDelete(opts, args[0])
		},
	}

	return cmd
}

func runKeyDelete(opts *keyCmdOpts, key string) error {
	var resp model.ActionResponse
	payload := map[string]interface{}{
		"password": opts.resolveSecret(),
		"key":      key,
	}
	if err := postJSON(opts.server+"/delete", payload, &resp); err != nil {
		return err
	}

	fmt.Printf("Deleted key %s\n", key)
	return nil
}

// ---------- HTTP helper ----------

// postJSON posts payload to url and decodes the JSON response into out.
// Non-2xx responses are turned into errors carrying the server's message.
func postJSON(url string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp model.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("server error (%s): %s", resp.Status, errResp.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
