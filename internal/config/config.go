package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// PricingMode selects the order pricing strategy.
const (
	PricingModeSymbol = "symbol"
	PricingModePair   = "pair"
)

type Config struct {
	Port         int
	DatabasePath string
	JWTSecret    string
	OwnerAddress string
	PricingMode  string
	NATSURL      string
	NATSSubject  string
}

// New loads configuration from the environment. A .env file is applied first
// when present.
func New() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg := &Config{
		Port:         getEnvInt("PORT", 8080),
		DatabasePath: getEnv("DATABASE_PATH", "otc.db"),
		JWTSecret:    getEnv("JWT_SECRET", "otc-secret-key"),
		OwnerAddress: getEnvOrFatal("OWNER_ADDRESS"),
		PricingMode:  getEnv("PRICING_MODE", PricingModeSymbol),
		NATSURL:      getEnv("NATS_URL", ""),
		NATSSubject:  getEnv("NATS_SUBJECT_PREFIX", "otc.events"),
	}

	if cfg.PricingMode != PricingModeSymbol && cfg.PricingMode != PricingModePair {
		log.Fatal().Str("pricing_mode", cfg.PricingMode).Msg("unknown pricing mode")
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrFatal(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatal().Str("key", key).Msg("required environment variable not set")
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
