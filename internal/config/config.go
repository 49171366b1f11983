package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds everything the server reads from the environment. A .env file
// in the working directory is loaded first if present.
type Config struct {
	Port         string
	DatabaseURL  string   // empty = in-memory store
	KafkaBrokers []string // empty = events disabled
	JWTSecret    string
}

func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:        getenv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   getenv("JWT_SECRET", "dev-secret-change-me"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
