package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/keyshop/internal/command"
	"github.com/MarkoPoloResearchLab/keyshop/internal/config"
	"github.com/MarkoPoloResearchLab/keyshop/internal/httpapi"
	"github.com/MarkoPoloResearchLab/keyshop/internal/migration"
	"github.com/MarkoPoloResearchLab/keyshop/internal/observability"
	"github.com/MarkoPoloResearchLab/keyshop/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/keyshop/pkg/shop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	flagDown     = "down"
	flagPlan     = "plan"
	flagFile     = "file"
	flagAccount  = "account"
	flagName     = "name"
	flagTokenTTL = "ttl"
)

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	registry := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("metrics init: %w", err)
	}
	operationLogger := shop.MultiOperationLogger{observability.NewZapOperationLogger(logger), metrics}
	rt, err := openRuntime(ctx, cfg, logger, operationLogger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.service.EnsureAdmins(ctx, cfg.AdminIDs); err != nil {
		return fmt.Errorf("bootstrap admins: %w", err)
	}
	tokens, err := httpapi.NewTokenIssuer(cfg.JWTSigningKey, cfg.JWTIssuer)
	if err != nil {
		return err
	}
	var sessions *sessionvalidator.Validator
	if cfg.SessionsEnabled() {
		sessions, err = sessionvalidator.New(sessionvalidator.Config{
			SigningKey: []byte(cfg.SessionSigningKey),
			Issuer:     cfg.SessionIssuer,
			CookieName: cfg.SessionCookieName,
		})
		if err != nil {
			return fmt.Errorf("session validator: %w", err)
		}
	}
	dispatcher, err := command.NewDispatcher(rt.service)
	if err != nil {
		return err
	}
	router, err := httpapi.NewRouter(httpapi.Options{
		AllowedOrigins:    cfg.AllowedOrigins,
		RequestTimeout:    cfg.RequestTimeout,
		SessionCookieName: cfg.SessionCookieName,
	}, httpapi.Dependencies{
		Service:    rt.service,
		Dispatcher: dispatcher,
		Tokens:     tokens,
		Sessions:   sessions,
		Logger:     logger,
		Metrics:    metrics,
		Gatherer:   registry,
	})
	if err != nil {
		return err
	}
	logger.Info("store ready", zap.String("backend", cfg.StoreBackend), zap.Int("bootstrap_admins", len(cfg.AdminIDs)))
	return httpapi.Run(ctx, cfg.ListenAddr, router, logger)
}

func newMigrateCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date",
		RunE: func(cmd *cobra.Command, args []string) error {
			down, err := cmd.Flags().GetInt(flagDown)
			if err != nil {
				return err
			}
			return runMigrate(cmd.Context(), cfg, down, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Int(flagDown, 0, "roll back this many migrations instead of applying (postgres only)")
	return cmd
}

func runMigrate(ctx context.Context, cfg *config.Config, down int, out io.Writer) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	database, err := gormstore.Open(ctx, cfg.DatabaseURL, newGormLogger(logger))
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = database.Close() }()

	if database.Driver == gormstore.DriverSQLite {
		if down > 0 {
			return fmt.Errorf("rollback is only supported on postgres")
		}
		if err := database.AutoMigrate(); err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, "sqlite schema up to date")
		return err
	}
	sqlDB, err := database.DB.DB()
	if err != nil {
		return err
	}
	if down > 0 {
		if err := migration.RollbackMigrations(ctx, sqlDB, down); err != nil {
			return err
		}
	} else if err := migration.RunMigrations(ctx, sqlDB); err != nil {
		return err
	}
	version, dirty, err := migration.Version(ctx, sqlDB)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "schema version %d (dirty=%t)\n", version, dirty)
	return err
}

func newKeysCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage plan keys",
	}
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Add keys to a plan from a file with one key per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawPlan, err := cmd.Flags().GetString(flagPlan)
			if err != nil {
				return err
			}
			planID, err := shop.ParsePlanID(rawPlan)
			if err != nil {
				return err
			}
			path, err := cmd.Flags().GetString(flagFile)
			if err != nil {
				return err
			}
			return runKeysImport(cmd.Context(), cfg, planID, path, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	importCmd.Flags().String(flagPlan, "", "plan id")
	importCmd.Flags().String(flagFile, "-", "key file, - for stdin")
	_ = importCmd.MarkFlagRequired(flagPlan)
	cmd.AddCommand(importCmd)
	return cmd
}

func runKeysImport(ctx context.Context, cfg *config.Config, planID shop.PlanID, path string, stdin io.Reader, out io.Writer) error {
	source := stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open key file: %w", err)
		}
		defer file.Close()
		source = file
	}
	values, err := readKeyLines(source)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	rt, err := openRuntime(ctx, cfg, logger, observability.NewZapOperationLogger(logger))
	if err != nil {
		return err
	}
	defer rt.Close()

	inserted, err := rt.service.AddKeys(ctx, planID, values)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "imported %d keys into plan %s\n", inserted, planID)
	return err
}

// readKeyLines returns the non-blank lines of source.
func readKeyLines(source io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(source)
	values := []string{}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			values = append(values, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return values, nil
}

func newStatsCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print shop statistics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()
			rt, err := openRuntime(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer rt.Close()
			statistics, err := rt.service.Statistics(cmd.Context())
			if err != nil {
				return err
			}
			return writeStatistics(cmd.OutOrStdout(), statistics)
		},
	}
}

func writeStatistics(out io.Writer, statistics shop.Statistics) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]any{
		"total_orders":    statistics.TotalOrders,
		"revenue":         statistics.Revenue.String(),
		"accounts":        statistics.Accounts,
		"banned_accounts": statistics.BannedAccounts,
		"active_products": statistics.ActiveProducts,
		"total_keys":      statistics.TotalKeys,
		"used_keys":       statistics.UsedKeys,
		"available_keys":  statistics.AvailableKeys,
	})
}

func newTokenCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an API token for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawAccount, err := cmd.Flags().GetString(flagAccount)
			if err != nil {
				return err
			}
			accountID, err := shop.ParseAccountID(rawAccount)
			if err != nil {
				return err
			}
			displayName, err := cmd.Flags().GetString(flagName)
			if err != nil {
				return err
			}
			ttl, err := cmd.Flags().GetDuration(flagTokenTTL)
			if err != nil {
				return err
			}
			tokens, err := httpapi.NewTokenIssuer(cfg.JWTSigningKey, cfg.JWTIssuer)
			if err != nil {
				return err
			}
			token, err := tokens.Issue(accountID, displayName, tokenTTL(ttl), time.Now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().String(flagAccount, "", "account id placed in the subject claim")
	cmd.Flags().String(flagName, "", "display name claim")
	cmd.Flags().Duration(flagTokenTTL, 0, "token lifetime (default 24h)")
	_ = cmd.MarkFlagRequired(flagAccount)
	return cmd
}
