package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds process configuration loaded from the environment.
type Config struct {
	Port        string
	DatabaseDSN string
	GCSBucket   string

	// Gemini model used for both statement extraction and categorization.
	ModelName string
}

// Load reads configuration from .env (if present) and the environment.
func Load() (*Config, error) {
	// A missing .env is fine; containers set real env vars.
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseDSN: os.Getenv("DATABASE_DSN"),
		GCSBucket:   os.Getenv("GCS_BUCKET"),
		ModelName:   getEnv("MODEL_NAME", "gemini-2.5-flash"),
	}

	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("config: DATABASE_DSN is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
