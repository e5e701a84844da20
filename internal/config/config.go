// internal/config/config.go

// Package config loads server settings from the environment, with .env
// support for local development.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"quiz-battle/pkg/ai"
	"quiz-battle/pkg/database"
	"quiz-battle/pkg/logger"
)

type Config struct {
	Port        string
	CORSOrigins []string

	Database database.Config
	Log      logger.Config

	RedisAddr string

	JWTSecret     string
	PrivateAPIKey string

	AI                ai.Config
	AITimeout         time.Duration
	GenerationWorkers int

	ShutdownTimeout time.Duration
}

// Load reads .env files (if present) and the environment. Only JWT_SECRET is
// required up front; missing AI or shared keys fail the operations that need
// them.
func Load(envFiles ...string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(envFiles...)

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Port:        v.GetString("PORT"),
		CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),
		Database: database.Config{
			Driver:       v.GetString("DB_DRIVER"),
			DSN:          v.GetString("DB_DSN"),
			Host:         v.GetString("DB_HOST"),
			Port:         v.GetString("DB_PORT"),
			User:         v.GetString("DB_USER"),
			Password:     v.GetString("DB_PASSWORD"),
			DBName:       v.GetString("DB_NAME"),
			LogLevel:     v.GetString("DB_LOG_LEVEL"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		},
		Log: logger.Config{
			Level:      v.GetString("LOG_LEVEL"),
			Format:     v.GetString("LOG_FORMAT"),
			Output:     v.GetString("LOG_OUTPUT"),
			Dir:        v.GetString("LOG_DIR"),
			MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
		},
		RedisAddr:     v.GetString("REDIS_ADDR"),
		JWTSecret:     v.GetString("JWT_SECRET"),
		PrivateAPIKey: v.GetString("PRIVATE_API_KEY"),
		AI: ai.Config{
			APIKey: v.GetString("GEMINI_API_KEY"),
			Model:  v.GetString("AI_MODEL"),
		},
		AITimeout:         v.GetDuration("AI_TIMEOUT"),
		GenerationWorkers: v.GetInt("GENERATION_WORKERS"),
		ShutdownTimeout:   v.GetDuration("SHUTDOWN_TIMEOUT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "quiz_battle")
	v.SetDefault("DB_LOG_LEVEL", "warn")
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("LOG_OUTPUT", "stdout")
	v.SetDefault("LOG_DIR", "logs")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 30)

	v.SetDefault("AI_MODEL", ai.DefaultModel)
	v.SetDefault("AI_TIMEOUT", 60*time.Second)
	v.SetDefault("GENERATION_WORKERS", 2)
	v.SetDefault("SHUTDOWN_TIMEOUT", 15*time.Second)
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	if c.GenerationWorkers <= 0 {
		return errors.New("GENERATION_WORKERS must be positive")
	}
	if c.AITimeout <= 0 {
		return errors.New("AI_TIMEOUT must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
