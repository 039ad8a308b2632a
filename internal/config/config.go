package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// TokenSecret keys the HMAC used for verification tokens. Hex, 32 bytes.
	TokenSecret string `mapstructure:"TOKEN_SECRET"`

	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`

	ClinicName string `mapstructure:"CLINIC_NAME"`

	SuggestURL            string `mapstructure:"SUGGEST_URL"`
	SuggestAPIKey         string `mapstructure:"SUGGEST_API_KEY"`
	SuggestModel          string `mapstructure:"SUGGEST_MODEL"`
	SuggestTimeoutSeconds int    `mapstructure:"SUGGEST_TIMEOUT_SECONDS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("CLINIC_NAME", "MedScript Pro")
	v.SetDefault("SUGGEST_URL", "https://openrouter.ai/api/v1/chat/completions")
	v.SetDefault("SUGGEST_MODEL", "anthropic/claude-3-haiku")
	v.SetDefault("SUGGEST_TIMEOUT_SECONDS", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("TOKEN_SECRET")
	v.BindEnv("AUTH_SIGNING_KEY")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("CLINIC_NAME")
	v.BindEnv("SUGGEST_URL")
	v.BindEnv("SUGGEST_API_KEY")
	v.BindEnv("SUGGEST_MODEL")
	v.BindEnv("SUGGEST_TIMEOUT_SECONDS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ==========================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Auth is bypassed; all requests get physician access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: ==========================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SuggestTimeout returns the suggestion service timeout as a duration.
func (c *Config) SuggestTimeout() time.Duration {
	if c.SuggestTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.SuggestTimeoutSeconds) * time.Second
}

// TokenSecretBytes decodes TOKEN_SECRET. Callers must run Validate first.
func (c *Config) TokenSecretBytes() []byte {
	b, _ := hex.DecodeString(c.TokenSecret)
	return b
}

// Validate checks that the configuration is safe to run. Outside development
// mode TOKEN_SECRET is required and must be a valid 64-character hex string
// (32 bytes when decoded) so that issued documents stay verifiable across
// restarts, and AUTH_SIGNING_KEY is required so real JWT authentication is
// enforced.
func (c *Config) Validate() error {
	if !c.IsDev() && c.TokenSecret == "" {
		return fmt.Errorf("TOKEN_SECRET is required when ENV=%q", c.Env)
	}
	if c.TokenSecret != "" {
		keyBytes, err := hex.DecodeString(c.TokenSecret)
		if err != nil {
			return fmt.Errorf("TOKEN_SECRET is not valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("TOKEN_SECRET must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
		}
	}
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf(
			"AUTH_SIGNING_KEY must be set when ENV=%q. "+
				"Refusing to start without authentication configuration", c.Env)
	}
	return nil
}
