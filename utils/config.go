package utils

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

var (
	EnvPath string = "."
)

const MinCallbackTokenLength = 16

type Config struct {
	Env                    string        `mapstructure:"ENV"`
	ServerPort             int           `mapstructure:"SERVER_PORT"`
	SigningKey             string        `mapstructure:"SIGNING_KEY"`
	TokenIssuer            string        `mapstructure:"TOKEN_ISSUER"`
	MpesaCallbackToken     string        `mapstructure:"MPESA_CALLBACK_TOKEN"`
	AWSRegion              string        `mapstructure:"AWS_REGION"`
	AWSAccessKeyID         string        `mapstructure:"AWS_ACCESS_KEY"`
	AWSSecretAccessKey     string        `mapstructure:"AWS_SECRET_ACCESS_KEY"`
	ReconciliationTopicARN string        `mapstructure:"RECONCILIATION_TOPIC_ARN"`
	SMSReceipts            bool          `mapstructure:"SMS_RECEIPTS"`
	DBUsername             string        `mapstructure:"DB_USERNAME"`
	DBPassword             string        `mapstructure:"DB_PASSWORD"`
	DBHost                 string        `mapstructure:"DB_HOST"`
	DBPort                 string        `mapstructure:"DB_PORT"`
	DBDriver               string        `mapstructure:"DB_DRIVER"`
	DBName                 string        `mapstructure:"DB_NAME"`
	SSLMode                string        `mapstructure:"SSLMODE"`
	MigrationsPath         string        `mapstructure:"MIGRATIONS_PATH"`
	LogLevel               string        `mapstructure:"LOG_LEVEL"`
	Papertrail             string        `mapstructure:"PAPERTRAIL"`
	PapertrailAppName      string        `mapstructure:"PAPERTRAIL_APP_NAME"`
	RedisHost              string        `mapstructure:"REDIS_HOST"`
	RedisPort              string        `mapstructure:"REDIS_PORT"`
	RedisPassword          string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB                int           `mapstructure:"REDIS_DB"`
	HashidsSalt            string        `mapstructure:"HASHIDS_SALT"`
	BTCPrices              string        `mapstructure:"BTC_PRICES"`
	PaymentLockTTL         time.Duration `mapstructure:"PAYMENT_LOCK_TTL"`
	InvoiceExpiry          time.Duration `mapstructure:"INVOICE_EXPIRY"`
	BalanceCacheTTL        time.Duration `mapstructure:"BALANCE_CACHE_TTL"`
}

func LoadConfig(path string) (*Config, error) {
	// Validate that the path is not empty
	if path == "" {
		path = "."
	}

	// Create a new Viper instance to avoid global state
	v := viper.New()

	// Disable environment variable prefix
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	// Configure config file
	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Log the error, but don't fail entirely
		log.Printf("Warning: Unable to read config file: %v", err)
	}

	// Create config struct
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Additional security: Validate critical configurations
	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// AutomaticEnv only resolves keys viper already knows about, so every key
// that may come purely from the environment needs a default here.
func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("SERVER_PORT", 0)
	v.SetDefault("SIGNING_KEY", "")
	v.SetDefault("TOKEN_ISSUER", "")
	v.SetDefault("MPESA_CALLBACK_TOKEN", "")
	v.SetDefault("AWS_REGION", "")
	v.SetDefault("AWS_ACCESS_KEY", "")
	v.SetDefault("AWS_SECRET_ACCESS_KEY", "")
	v.SetDefault("RECONCILIATION_TOPIC_ARN", "")
	v.SetDefault("SMS_RECEIPTS", false)
	v.SetDefault("DB_USERNAME", "")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_NAME", "swiftfiat_settlement")
	v.SetDefault("SSLMODE", "disable")
	v.SetDefault("MIGRATIONS_PATH", "file://db/migrations")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PAPERTRAIL", "")
	v.SetDefault("PAPERTRAIL_APP_NAME", "swiftfiat-settlement")
	v.SetDefault("REDIS_HOST", "")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("HASHIDS_SALT", "swiftfiat")
	v.SetDefault("BTC_PRICES", "")
	v.SetDefault("PAYMENT_LOCK_TTL", 30*time.Second)
	v.SetDefault("INVOICE_EXPIRY", time.Hour)
	v.SetDefault("BALANCE_CACHE_TTL", 5*time.Minute)
}

func validateConfig(config *Config) error {
	if config.ServerPort == 0 {
		return fmt.Errorf("server port must be specified")
	}

	if config.DBUsername == "" || config.DBPassword == "" {
		return fmt.Errorf("database credentials must be provided")
	}

	if config.SigningKey == "" {
		return fmt.Errorf("signing key must be provided")
	}

	if len(config.MpesaCallbackToken) < MinCallbackTokenLength {
		return fmt.Errorf("mpesa callback token must be at least %d characters", MinCallbackTokenLength)
	}

	if config.PaymentLockTTL <= 0 {
		return fmt.Errorf("payment lock ttl must be positive")
	}

	return nil
}

// RedisEnabled reports whether a shared Redis instance was configured. Payment
// locks and the balance cache live there, so the server refuses to start
// without one.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// Optional: Masking sensitive information for logging
func (c *Config) Redact() Config {
	redacted := *c
	redacted.AWSSecretAccessKey = "****"
	redacted.DBPassword = "****"
	redacted.RedisPassword = "****"
	redacted.SigningKey = "****"
	redacted.MpesaCallbackToken = "****"
	return redacted
}

func LoadCustomConfig(path string, val interface{}) error {
	// Validate that the path is not empty
	if path == "" {
		path = "."
	}

	// Create a new Viper instance to avoid global state
	v := viper.New()

	// Allow overriding config via environment variables
	v.SetEnvPrefix("SWIFT") // Prefix for env vars
	v.AutomaticEnv()

	// Configure config file
	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Log the error, but don't fail entirely
		log.Printf("Warning: Unable to read config file: %v", err)
	}

	if err := v.Unmarshal(val); err != nil {
		return fmt.Errorf("unable to decode config: %w", err)
	}

	return nil
}
