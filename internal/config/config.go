// Package config loads client settings from an optional .env file and the
// process environment.
package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config carries the client's environment-derived settings.
type Config struct {
	APIBaseURL string
	WSURL      string
	StorePath  string
	LogLevel   string
}

// Load reads .env (if present) and the environment, falling back to the
// development defaults of the hosted backend.
func Load() Config {
	_ = godotenv.Load() // a missing .env is fine
	return Config{
		APIBaseURL: getenv("CAMPUSLINK_API_URL", "http://localhost:3000/api"),
		WSURL:      getenv("CAMPUSLINK_WS_URL", "ws://localhost:3000"),
		StorePath:  getenv("CAMPUSLINK_STORE", "campuslink.db"),
		LogLevel:   getenv("CAMPUSLINK_LOG_LEVEL", "info"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
