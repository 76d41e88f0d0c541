package httpapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultListenAddr        = ":8080"
	defaultAllowedOrigin     = "http://localhost:3000"
	defaultSessionIssuer     = "centxt"
	defaultSessionTTL        = 24 * time.Hour
	defaultFeedLimit         = 50
	defaultNotificationLimit = 50
	defaultTransactionLimit  = 50
	maxListLimit             = 200
)

// ReactionCatalog maps purchasable reaction kinds to their price. The catalog
// is server-side: clients never supply prices.
type ReactionCatalog map[string]decimal.Decimal

// DefaultReactionCatalog returns the stock emoji shop.
func DefaultReactionCatalog() ReactionCatalog {
	return ReactionCatalog{
		"fire":    decimal.NewFromInt(5),
		"star":    decimal.NewFromInt(10),
		"rocket":  decimal.NewFromInt(20),
		"diamond": decimal.NewFromInt(50),
	}
}

// Config aggregates runtime settings for the HTTP facade.
type Config struct {
	ListenAddr        string
	AllowedOrigins    []string
	SessionSigningKey string
	SessionIssuer     string
	SessionTTL        time.Duration
	Catalog           ReactionCatalog
}

// Validate ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	cfg.SessionIssuer = defaultIfEmpty(cfg.SessionIssuer, defaultSessionIssuer)
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultReactionCatalog()
	}
	if len(cfg.SessionSigningKey) == 0 {
		return fmt.Errorf("jwt signing key is required")
	}
	for kind, price := range cfg.Catalog {
		if strings.TrimSpace(kind) == "" {
			return fmt.Errorf("catalog contains an empty reaction kind")
		}
		if price.Sign() <= 0 {
			return fmt.Errorf("catalog price for %q must be positive", kind)
		}
	}
	return nil
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
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

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func normalizeListLimit(limit int, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
