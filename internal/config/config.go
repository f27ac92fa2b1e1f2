package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL      string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     string

	// Redis (optional read-side cache; empty URL disables it)
	RedisURL      string
	RedisPassword string

	// Server
	Port        string
	CORSOrigins []string

	// Authentication
	JWTSecret         string
	JWTExpiresMinutes int

	// Uploads (unused by the match core)
	UploadDir string

	// Match coordination
	IdleMinutes        int
	PreStartDelaySecs  int
	CountdownSecs      int
	MaxPlayersPerMatch int

	// Leaderboard
	LeaderboardTopN int
}

func Load() *Config {
	return &Config{
		Environment: getEnvOrDefault("ENVIRONMENT", "development"),

		DatabaseURL:      getEnvOrDefault("DATABASE_URL", ""),
		PostgresDB:       getEnvOrDefault("POSTGRES_DB", "minesweeper"),
		PostgresUser:     getEnvOrDefault("POSTGRES_USER", "minesweeper_user"),
		PostgresPassword: getEnvOrDefault("POSTGRES_PASSWORD", "minesweeper_password"),
		PostgresHost:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvOrDefault("POSTGRES_PORT", "5432"),

		RedisURL:      getEnvOrDefault("REDIS_URL", ""),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		Port:        getEnvOrDefault("PORT", "8080"),
		CORSOrigins: splitCSV(getEnvOrDefault("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")),

		JWTSecret:         getEnvOrDefault("JWT_SECRET", "minesweeper-secret-change-in-production"),
		JWTExpiresMinutes: getEnvIntOrDefault("JWT_EXPIRES_MINUTES", 24*60),

		UploadDir: getEnvOrDefault("UPLOAD_DIR", "./uploads"),

		IdleMinutes:        getEnvIntOrDefault("IDLE_MINUTES", 10),
		PreStartDelaySecs:  getEnvIntOrDefault("PRE_START_DELAY_SECS", 3),
		CountdownSecs:      getEnvIntOrDefault("COUNTDOWN_SECS", 300),
		MaxPlayersPerMatch: getEnvIntOrDefault("MAX_PLAYERS_PER_MATCH", 2),

		LeaderboardTopN: getEnvIntOrDefault("LEADERBOARD_TOP_N", 10),
	}
}

func (c *Config) GetDatabaseURL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDB,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
