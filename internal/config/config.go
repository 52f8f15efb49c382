package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv   string
	Port      string
	JWTSecret string
	LogLevel  string
	Database  DatabaseConfig
	Media     MediaConfig
	Source    SourceConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Alter    bool
}

// MediaConfig says where installer binaries live and how they are served
type MediaConfig struct {
	Root string
	URL  string
}

// SourceConfig is what the winget information endpoint reports
type SourceConfig struct {
	Identifier        string
	SupportedVersions []string
	// TrustProxyHeaders makes installer URLs follow X-Forwarded-Proto/Host.
	TrustProxyHeaders bool
}

// IsDevelopment reports whether NODE_ENV selects development behaviour
func (c *Config) IsDevelopment() bool {
	return c.NodeEnv == "development"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return &Config{
		NodeEnv:   getEnv("NODE_ENV", "development"),
		Port:      getEnv("PORT", "3001"),
		JWTSecret: jwtSecret,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		Database:  LoadDatabase(),
		Media:     LoadMedia(),
		Source: SourceConfig{
			Identifier:        getEnv("SOURCE_IDENTIFIER", "api.winget.pro"),
			SupportedVersions: splitList(getEnv("SERVER_SUPPORTED_VERSIONS", "1.1.0")),
			TrustProxyHeaders: getEnv("TRUST_PROXY_HEADERS", "false") == "true",
		},
	}, nil
}

// LoadDatabase reads only the PG_* settings. The provisioning CLI uses it
// without requiring JWT_SECRET.
func LoadDatabase() DatabaseConfig {
	_ = godotenv.Load()
	return DatabaseConfig{
		Host:     getEnv("PG_HOST", "localhost"),
		Port:     getEnv("PG_PORT", "5432"),
		Username: getEnv("PG_USERNAME", "postgres"),
		Password: os.Getenv("PG_PASSWORD"),
		Database: getEnv("PG_DATABASE", "wingetpro"),
		Alter:    getEnv("DB_ALTER", "false") == "true",
	}
}

// LoadMedia reads MEDIA_ROOT and MEDIA_URL
func LoadMedia() MediaConfig {
	return MediaConfig{
		Root: getEnv("MEDIA_ROOT", "./media"),
		URL:  getEnv("MEDIA_URL", "/media/"),
	}
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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
