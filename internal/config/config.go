package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/keyshop/pkg/shop"
)

const (
	StoreBackendGorm = "gorm"
	StoreBackendPgx  = "pgx"

	defaultDatabaseURL    = "sqlite://keyshop.db"
	defaultListenAddr     = ":8080"
	defaultAllowedOrigin  = "http://localhost:3000"
	defaultJWTIssuer      = "keyshop"
	defaultSessionIssuer  = "tauth"
	defaultSessionCookie  = "app_session"
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultRequestTimeout = 10 * time.Second
)

// Config aggregates runtime settings for keyshopd.
type Config struct {
	DatabaseURL         string
	StoreBackend        string
	ListenAddr          string
	LogLevel            string
	LogFormat           string
	JWTSigningKey       string
	JWTIssuer           string
	SessionSigningKey   string
	SessionIssuer       string
	SessionCookieName   string
	AllowedOrigins      []string
	RequestTimeout      time.Duration
	AdminIDs            []shop.AccountID
	MaxPurchaseQuantity int
}

// Validate fills defaults and rejects unusable values.
func (cfg *Config) Validate() error {
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.StoreBackend = strings.ToLower(defaultIfEmpty(cfg.StoreBackend, StoreBackendGorm))
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.LogLevel = defaultIfEmpty(cfg.LogLevel, defaultLogLevel)
	cfg.LogFormat = defaultIfEmpty(cfg.LogFormat, defaultLogFormat)
	cfg.JWTIssuer = defaultIfEmpty(cfg.JWTIssuer, defaultJWTIssuer)
	cfg.SessionIssuer = defaultIfEmpty(cfg.SessionIssuer, defaultSessionIssuer)
	cfg.SessionCookieName = defaultIfEmpty(cfg.SessionCookieName, defaultSessionCookie)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if cfg.MaxPurchaseQuantity == 0 {
		cfg.MaxPurchaseQuantity = shop.DefaultMaxPurchaseQuantity
	}
	switch cfg.StoreBackend {
	case StoreBackendGorm:
	case StoreBackendPgx:
		if !strings.HasPrefix(cfg.DatabaseURL, "postgres://") && !strings.HasPrefix(cfg.DatabaseURL, "postgresql://") {
			return fmt.Errorf("store backend %q requires a postgres database url", StoreBackendPgx)
		}
	default:
		return fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
	if cfg.MaxPurchaseQuantity < 0 {
		return fmt.Errorf("max purchase quantity must be positive")
	}
	return nil
}

// SessionsEnabled reports whether tauth session cookies are accepted.
func (cfg *Config) SessionsEnabled() bool {
	return len(cfg.SessionSigningKey) > 0
}

// ValidateServer additionally requires the settings only the HTTP server needs.
func (cfg *Config) ValidateServer() error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(cfg.JWTSigningKey) == 0 {
		return fmt.Errorf("jwt signing key is required")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

// ParseList splits comma-delimited values into a slice.
func ParseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}

// ParseAdminIDs parses comma-delimited account ids.
func ParseAdminIDs(raw string) ([]shop.AccountID, error) {
	values := ParseList(raw)
	adminIDs := make([]shop.AccountID, 0, len(values))
	for _, value := range values {
		accountID, err := shop.ParseAccountID(value)
		if err != nil {
			return nil, fmt.Errorf("admin id %q: %w", value, err)
		}
		adminIDs = append(adminIDs, accountID)
	}
	return adminIDs, nil
}
