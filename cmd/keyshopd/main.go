package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/keyshop/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix = "KEYSHOP"

	flagDatabaseURL         = "database-url"
	flagStoreBackend        = "store-backend"
	flagLogLevel            = "log-level"
	flagLogFormat           = "log-format"
	flagListenAddr          = "listen-addr"
	flagJWTSigningKey       = "jwt-signing-key"
	flagJWTIssuer           = "jwt-issuer"
	flagSessionSigningKey   = "session-signing-key"
	flagSessionIssuer       = "session-issuer"
	flagSessionCookieName   = "session-cookie-name"
	flagAllowedOrigins      = "allowed-origins"
	flagRequestTimeout      = "request-timeout"
	flagAdminIDs            = "admin-ids"
	flagMaxPurchaseQuantity = "max-purchase-quantity"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "keyshopd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	settings := viper.New()
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:           "keyshopd",
		Short:         "Digital access key shop",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, settings, cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagDatabaseURL, "", "postgres:// URL, sqlite:// URL or SQLite file path")
	flags.String(flagStoreBackend, config.StoreBackendGorm, "store implementation: gorm or pgx")
	flags.String(flagLogLevel, "info", "log level")
	flags.String(flagLogFormat, "json", "log format: json or console")
	flags.String(flagJWTSigningKey, "", "HS256 signing key for API tokens")
	flags.String(flagJWTIssuer, "", "expected token issuer")
	flags.Int(flagMaxPurchaseQuantity, 0, "maximum keys per order")

	cmd.AddCommand(
		newServeCommand(cfg),
		newMigrateCommand(cfg),
		newKeysCommand(cfg),
		newStatsCommand(cfg),
		newTokenCommand(cfg),
	)
	return cmd
}

func newServeCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.ValidateServer(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().String(flagListenAddr, "", "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated CORS origins")
	cmd.Flags().Duration(flagRequestTimeout, 0, "per-request timeout")
	cmd.Flags().String(flagAdminIDs, "", "comma-separated account ids promoted to admin at start")
	cmd.Flags().String(flagSessionSigningKey, "", "tauth session signing key; empty disables cookie sessions")
	cmd.Flags().String(flagSessionIssuer, "", "expected tauth session issuer")
	cmd.Flags().String(flagSessionCookieName, "", "tauth session cookie name")
	return cmd
}

// loadConfig merges flags and KEYSHOP_* environment variables into cfg.
func loadConfig(cmd *cobra.Command, settings *viper.Viper, cfg *config.Config) error {
	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	if err := settings.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	adminIDs, err := config.ParseAdminIDs(settings.GetString(flagAdminIDs))
	if err != nil {
		return err
	}
	*cfg = config.Config{
		DatabaseURL:         settings.GetString(flagDatabaseURL),
		StoreBackend:        settings.GetString(flagStoreBackend),
		ListenAddr:          settings.GetString(flagListenAddr),
		LogLevel:            settings.GetString(flagLogLevel),
		LogFormat:           settings.GetString(flagLogFormat),
		JWTSigningKey:       settings.GetString(flagJWTSigningKey),
		JWTIssuer:           settings.GetString(flagJWTIssuer),
		SessionSigningKey:   settings.GetString(flagSessionSigningKey),
		SessionIssuer:       settings.GetString(flagSessionIssuer),
		SessionCookieName:   settings.GetString(flagSessionCookieName),
		AllowedOrigins:      config.ParseList(settings.GetString(flagAllowedOrigins)),
		RequestTimeout:      settings.GetDuration(flagRequestTimeout),
		AdminIDs:            adminIDs,
		MaxPurchaseQuantity: settings.GetInt(flagMaxPurchaseQuantity),
	}
	return cfg.Validate()
}

func tokenTTL(raw time.Duration) time.Duration {
	if raw <= 0 {
		return 24 * time.Hour
	}
	return raw
}
