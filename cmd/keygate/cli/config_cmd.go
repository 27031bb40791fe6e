package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/keygate/keygate/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage keygate configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default keygate.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")

	return cmd
}

func runConfigInit(force bool) error {
	path := "keygate.yaml"

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := config.WriteDefaultConfig(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	fmt.Println("Set auth.admin_secret (or run 'keygate secret set'), then run 'keygate serve'.")
	return nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	return cmd
}

// ---------- config get / set ----------

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Example: `  keygate config get server.port
  keygate config get keys.prefix`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			initConfig()
			key := args[0]
			if strings.HasPrefix(key, "auth.") {
				return fmt.Errorf("%s is redacted; edit the config file directly", key)
			}
			if !viper.IsSet(key) {
				return fmt.Errorf("key %q is not set", key)
			}
			fmt.Println(viper.Get(key))
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value in the config file",
		Example: `  keygate config set server.port 9090
  keygate config set keys.prefix LIC`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			initConfig()
			viper.Set(args[0], args[1])
			if viper.ConfigFileUsed() == "" {
				if err := viper.WriteConfigAs("keygate.yaml"); err != nil {
					return fmt.Errorf("write config: %w", err)
				}
				fmt.Printf("Set %s in keygate.yaml\n", args[0])
				return nil
			}
			if err := viper.WriteConfig(); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Printf("Set %s in %s\n", args[0], viper.ConfigFileUsed())
			return nil
		},
	}
}

func runConfigShow() error {
	initConfig()

	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		fmt.Printf("Config file: %s\n", configFile)
	} else {
		fmt.Println("Config file: (none found, using defaults)")
	}
	fmt.Println()

	settings := viper.AllSettings()
	if len(settings) == 0 {
		fmt.Println("No configuration settings loaded.")
		fmt.Println("Run 'keygate config init' to create a default configuration file.")
		return nil
	}

	for key, value := range settings {
		if key == "auth" {
			fmt.Printf("  %s: (redacted)\n", key)
			continue
		}
		fmt.Printf("  %s: %v\n", key, value)
	}

	return nil
}
