package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/keygate/keygate/internal/keygen"
	"github.com/keygate/keygate/internal/license"
	"github.com/keygate/keygate/internal/reaper"
	"github.com/keygate/keygate/internal/server"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/store"
)

const banner = `
 _  _________   _____ _  _____ ___
| |/ / __\ \ / / __|/ \|_   _| __|
|   <| _| \ V / (_ / _ \ | | | _|
|_|\_\___| |_| \___/_/ \_\|_| |___|
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the keygate API server",
		Long:  "Start the HTTP server that mints, verifies, and manages access keys.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	logLevel := slog.LevelInfo
	if dev || viper.GetString("logging.level") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	// 1. Settings/audit store (SQLite)
	cfgStore, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("init settings store: %w", err)
	}
	defer cfgStore.Close()
	logger.Info("settings store initialized", "path", resolveDataDir())

	// 2. Key store and lifecycle engine
	gen := keygen.New(viper.GetString("keys.prefix"))
	keyStore := store.New()
	svc := license.New(keyStore, gen, logger,
		license.WithAudit(cfgStore),
		license.WithDefaultDuration(viper.GetInt("keys.default_duration_hours")),
	)

	// 3. Admin gate
	adminSecret := viper.GetString("auth.admin_secret")
	jwtSecret := viper.GetString("auth.jwt_secret")
	if jwtSecret == "" {
		jwtSecret = "keygate-dev-secret-change-me"
		logger.Warn("auth.jwt_secret not set, using development default")
	}
	authSvc := service.NewAuthService(cfgStore, adminSecret, jwtSecret)

	// 4. Expiry reaper
	sweepInterval := reaper.DefaultInterval
	if raw := viper.GetString("keys.sweep_interval"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			sweepInterval = d
		} else {
			logger.Warn("invalid keys.sweep_interval, using default", "value", raw)
		}
	}
	rp := reaper.New(keyStore, sweepInterval, logger)
	rp.Start()
	defer rp.Shutdown()

	// 5. HTTP server
	srvCfg := server.DefaultConfig()
	srvCfg.Host = host
	srvCfg.Port = port
	if origins := viper.GetStringSlice("server.cors_origins"); len(origins) > 0 {
		srvCfg.CORSOrigins = origins
	}
	if raw := viper.GetString("auth.jwt_expiry"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			srvCfg.SessionTTL = d
		} else {
			logger.Warn("invalid auth.jwt_expiry, using default", "value", raw)
		}
	}

	srv := server.New(srvCfg, svc, authSvc, cfgStore, logger)

	fmt.Printf("→ Keygate %s\n", versionString())
	fmt.Printf("→ Key format: %s-XXXX-XXXX-XXXX\n", gen.Prefix())
	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ Status:  http://%s:%d/\n", host, port)
	fmt.Printf("→ OpenAPI: http://%s:%d/openapi.json\n", host, port)
	fmt.Printf("→ Health:  http://%s:%d/healthz\n", host, port)
	fmt.Println()

	return srv.ListenAndServe()
}
