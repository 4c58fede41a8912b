package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Auth       AuthConfig       `json:"auth"`
	Onboarding OnboardingConfig `json:"onboarding"`
	Sessions   SessionsConfig   `json:"sessions"`
	Email      EmailConfig      `json:"email"`
	Logging    LoggingConfig    `json:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	ReadTimeout     Duration `json:"read_timeout"`
	WriteTimeout    Duration `json:"write_timeout"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
	AllowedOrigins  []string `json:"allowed_origins"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	User           string   `json:"user"`
	Password       string   `json:"password"`
	DBName         string   `json:"db_name"`
	SSLMode        string   `json:"ssl_mode"`
	MaxConnections int      `json:"max_connections"`
	MaxIdleConns   int      `json:"max_idle_conns"`
	MaxLifetime    Duration `json:"max_lifetime"`
}

// AuthConfig holds token settings. AllowDevTokens enables POST /auth/token,
// which mints tokens without a password and must stay off in production.
type AuthConfig struct {
	JWTSecret      string   `json:"jwt_secret"`
	Issuer         string   `json:"issuer"`
	TokenTTL       Duration `json:"token_ttl"`
	AllowDevTokens bool     `json:"allow_dev_tokens"`
}

// OnboardingConfig controls the wizard's timers and reconciliation cadence
type OnboardingConfig struct {
	CompletionDelay Duration `json:"completion_delay"`
	SweepSpec       string   `json:"sweep_spec"`
	DataTTL         Duration `json:"data_ttl"`
	PortalURL       string   `json:"portal_url"`
}

// SessionsConfig controls the no-show worker
type SessionsConfig struct {
	NoShowGrace        Duration `json:"no_show_grace"`
	NoShowPollInterval Duration `json:"no_show_poll_interval"`
	NoShowBatchSize    int      `json:"no_show_batch_size"`
}

// EmailConfig selects the mail transport. Provider is "ses" or "log".
// Static credentials are optional; the default AWS chain is used otherwise.
type EmailConfig struct {
	Provider        string `json:"provider"`
	Region          string `json:"region"`
	FromAddress     string `json:"from_address"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// LoggingConfig
type LoggingConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// Duration decodes from JSON strings such as "5s" or "2m".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v))
		return nil
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration %v", raw)
	}
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(5 * time.Second),
			AllowedOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "clinic_portal",
			SSLMode:        "disable",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    Duration(30 * time.Minute),
		},
		Auth: AuthConfig{
			Issuer:   "clinic-portal",
			TokenTTL: Duration(12 * time.Hour),
		},
		Onboarding: OnboardingConfig{
			CompletionDelay: Duration(5 * time.Second),
			SweepSpec:       "@every 2m",
			DataTTL:         Duration(2 * time.Minute),
			PortalURL:       "/portal",
		},
		Sessions: SessionsConfig{
			NoShowGrace:        Duration(30 * time.Minute),
			NoShowPollInterval: Duration(5 * time.Minute),
			NoShowBatchSize:    50,
		},
		Email: EmailConfig{
			Provider:    "log",
			Region:      "us-east-1",
			FromAddress: "no-reply@clinic-portal.local",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from file, .env and environment variables,
// in that order of increasing precedence.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func overrideWithEnv(config *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}
	setDuration := func(key string, dst *Duration) error {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = Duration(d)
		}
		return nil
	}
	setBool := func(key string, dst *bool) error {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = b
		}
		return nil
	}

	setString("SERVER_HOST", &config.Server.Host)
	if err := setInt("SERVER_PORT", &config.Server.Port); err != nil {
		return err
	}

	setString("DATABASE_HOST", &config.Database.Host)
	if err := setInt("DATABASE_PORT", &config.Database.Port); err != nil {
		return err
	}
	setString("DATABASE_USER", &config.Database.User)
	setString("DATABASE_PASSWORD", &config.Database.Password)
	setString("DATABASE_DBNAME", &config.Database.DBName)
	setString("DATABASE_SSLMODE", &config.Database.SSLMode)

	setString("JWT_SECRET", &config.Auth.JWTSecret)
	if err := setDuration("JWT_TTL", &config.Auth.TokenTTL); err != nil {
		return err
	}
	if err := setBool("AUTH_ALLOW_DEV_TOKENS", &config.Auth.AllowDevTokens); err != nil {
		return err
	}

	if err := setDuration("ONBOARDING_COMPLETION_DELAY", &config.Onboarding.CompletionDelay); err != nil {
		return err
	}
	setString("ONBOARDING_SWEEP_SPEC", &config.Onboarding.SweepSpec)
	if err := setDuration("ONBOARDING_DATA_TTL", &config.Onboarding.DataTTL); err != nil {
		return err
	}
	setString("ONBOARDING_PORTAL_URL", &config.Onboarding.PortalURL)

	if err := setDuration("SESSIONS_NO_SHOW_GRACE", &config.Sessions.NoShowGrace); err != nil {
		return err
	}

	setString("EMAIL_PROVIDER", &config.Email.Provider)
	setString("EMAIL_REGION", &config.Email.Region)
	setString("EMAIL_FROM", &config.Email.FromAddress)
	setString("AWS_ACCESS_KEY_ID", &config.Email.AccessKeyID)
	setString("AWS_SECRET_ACCESS_KEY", &config.Email.SecretAccessKey)

	setString("LOG_LEVEL", &config.Logging.Level)
	return setBool("LOG_DEVELOPMENT", &config.Logging.Development)
}

// Validate rejects configurations the service cannot start with
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (JWT_SECRET) is required")
	}
	if c.Onboarding.CompletionDelay.Std() <= 0 {
		return errors.New("onboarding.completion_delay must be positive")
	}
	if c.Onboarding.DataTTL.Std() <= 0 {
		return errors.New("onboarding.data_ttl must be positive")
	}
	switch c.Email.Provider {
	case "ses", "log":
	default:
		return fmt.Errorf("unsupported email provider %q", c.Email.Provider)
	}
	return nil
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
