package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Server
	Env        string
	Port       string
	CORSOrigin string

	// Database
	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	// JWT
	JWTSecret        string
	JWTExpirationDur time.Duration

	// Symmetric secret used to encrypt provider access tokens at rest
	EncryptionKey string

	// Shared key for scheduler-triggered sync endpoints; empty disables them
	PipelineAPIKey string

	Plaid PlaidConfig
}

// PlaidConfig holds the aggregation provider settings.
type PlaidConfig struct {
	ClientID     string
	Secret       string
	Env          string
	ClientName   string
	WebhookURL   string
	Products     []string
	CountryCodes []string
	Timeout      time.Duration
}

// fileConfig mirrors the optional YAML file referenced by CONFIG_FILE.
// Values from the file act as defaults; environment variables win.
type fileConfig struct {
	Port           string `yaml:"port"`
	CORSOrigin     string `yaml:"cors_origin"`
	DatabaseURL    string `yaml:"database_url"`
	EncryptionKey  string `yaml:"encryption_key"`
	JWTSecret      string `yaml:"jwt_secret"`
	PipelineAPIKey string `yaml:"pipeline_api_key"`
	Plaid          struct {
		ClientID     string   `yaml:"client_id"`
		Secret       string   `yaml:"secret"`
		Env          string   `yaml:"env"`
		ClientName   string   `yaml:"client_name"`
		WebhookURL   string   `yaml:"webhook_url"`
		Products     []string `yaml:"products"`
		CountryCodes []string `yaml:"country_codes"`
		Timeout      string   `yaml:"timeout"`
	} `yaml:"plaid"`
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	var file fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config := &Config{
		// Server
		Env:        getEnv("ENV", "development"),
		Port:       getEnv("PORT", orDefault(file.Port, "8080")),
		CORSOrigin: getEnv("CORS_ORIGIN", orDefault(file.CORSOrigin, "*")),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", file.DatabaseURL),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "finlink"),
		DBPassword:  getEnv("DB_PASSWORD", "finlink"),
		DBName:      getEnv("DB_NAME", "finlink"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", orDefault(file.JWTSecret, "fallback-secret-key-for-dev-only")),

		EncryptionKey:  getEnv("ENCRYPTION_KEY", file.EncryptionKey),
		PipelineAPIKey: getEnv("PIPELINE_API_KEY", file.PipelineAPIKey),

		Plaid: PlaidConfig{
			ClientID:     getEnv("PLAID_CLIENT_ID", file.Plaid.ClientID),
			Secret:       getEnv("PLAID_SECRET", file.Plaid.Secret),
			Env:          strings.ToLower(getEnv("PLAID_ENV", orDefault(file.Plaid.Env, "sandbox"))),
			ClientName:   getEnv("PLAID_CLIENT_NAME", orDefault(file.Plaid.ClientName, "Plaid Acquisition API")),
			WebhookURL:   getEnv("PLAID_WEBHOOK_URL", file.Plaid.WebhookURL),
			Products:     getList("PLAID_PRODUCTS", file.Plaid.Products, []string{"transactions"}),
			CountryCodes: getList("PLAID_COUNTRY_CODES", file.Plaid.CountryCodes, []string{"US"}),
		},
	}

	// Access token lifetime; refresh tokens keep their fixed lifetime
	expStr := getEnv("JWT_EXPIRES_IN", "15m")
	expDur, err := time.ParseDuration(expStr)
	if err != nil || expDur <= 0 {
		log.Printf("Warning: invalid JWT_EXPIRES_IN value '%s', falling back to 15m\n", expStr)
		expDur = 15 * time.Minute
	}
	config.JWTExpirationDur = expDur

	timeoutStr := getEnv("PLAID_TIMEOUT", orDefault(file.Plaid.Timeout, "30s"))
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("invalid PLAID_TIMEOUT %q", timeoutStr)
	}
	config.Plaid.Timeout = timeout

	switch config.Plaid.Env {
	case "sandbox", "development", "production":
	default:
		return nil, fmt.Errorf("invalid PLAID_ENV %q: must be sandbox, development, or production", config.Plaid.Env)
	}

	appConfig = config
	return config, nil
}

// Validate checks the settings the API server cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.EncryptionKey == "" {
		missing = append(missing, "ENCRYPTION_KEY")
	}
	if c.Plaid.ClientID == "" {
		missing = append(missing, "PLAID_CLIENT_ID")
	}
	if c.Plaid.Secret == "" {
		missing = append(missing, "PLAID_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// DSN returns the Postgres connection URL, preferring DATABASE_URL.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getList reads a comma-separated environment variable.
func getList(key string, fileValue, defaultValue []string) []string {
	if raw := os.Getenv(key); raw != "" {
		return splitCSV(raw)
	}
	if len(fileValue) > 0 {
		return fileValue
	}
	return defaultValue
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
