package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/keygate/keygate/internal/keygen"
	"github.com/keygate/keygate/internal/license"
	kmcp "github.com/keygate/keygate/internal/mcp"
	"github.com/keygate/keygate/internal/store"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes key operations
as tools for AI agents. Supports stdio (default) and HTTP transports.

In stdio mode, the MCP server communicates over stdin/stdout using JSON-RPC,
suitable for MCP clients that launch the server as a subprocess.

The MCP process holds its own in-memory key table. Run it alongside
'keygate serve' only if separate key pools are intended.`,
		Example: `  keygate mcp                              # stdio mode
  keygate mcp --transport http --port 3001 # HTTP streamable mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Flags win; the mcp section of keygate.yaml fills the gaps.
			if !cmd.Flags().Changed("transport") {
				if v := viper.GetString("mcp.transport"); v != "" {
					transport = v
				}
			}
			addr := fmt.Sprintf(":%d", port)
			if !cmd.Flags().Changed("port") {
				if v := viper.GetString("mcp.http_addr"); v != "" {
					addr = v
				}
			}
			return runMCP(transport, addr)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")

	return cmd
}

func runMCP(transport, addr string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfgStore, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("init settings store: %w", err)
	}
	defer cfgStore.Close()

	prefix := viper.GetString("keys.prefix")
	svc := license.New(store.New(), keygen.New(prefix), logger, license.WithAudit(cfgStore))

	mcpSrv := kmcp.NewMCPServer(svc, logger)

	switch transport {
	case "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		return mcpSrv.ServeHTTP(addr)
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}
}
