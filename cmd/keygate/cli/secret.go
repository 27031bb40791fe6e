package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/keygate/keygate/internal/config"
)

// adminSecretSetting mirrors the settings-store key the auth service reads
// when no secret is configured in the file or environment.
const adminSecretSetting = "admin_secret_hash"

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the admin shared secret",
		Long: `Manage the shared secret guarding the privileged key operations (create,
bulk-create, list, delete). The secret is stored as a SHA-256 hash in the
settings store; a secret set via auth.admin_secret or KEYGATE_AUTH_ADMIN_SECRET
takes precedence over the stored one.`,
	}

	cmd.AddCommand(newSecretSetCmd())

	return cmd
}

// ---------- secret set ----------

func newSecretSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set the admin secret (prompted, hidden input)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSecretSet()
		},
	}

	return cmd
}

func runSecretSet() error {
	fmt.Print("Admin secret: ")
	secretBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to read secret: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm secret: ")
	confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Println()

	secret := string(secretBytes)
	if secret != string(confirmBytes) {
		return fmt.Errorf("secrets do not match")
	}
	if len(secret) < 8 {
		return fmt.Errorf("secret must be at least 8 characters")
	}

	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open settings store: %w", err)
	}
	defer store.Close()

	if err := store.SetSetting(context.Background(), adminSecretSetting, config.HashSecret(secret)); err != nil {
		return fmt.Errorf("store secret: %w", err)
	}

	fmt.Println("Admin secret updated.")
	return nil
}
