/**
 * @description
 * This package handles the configuration management for the wallet-service. It
 * uses the Viper library to read configuration from environment variables (with
 * an optional .env file), providing a centralized and straightforward way to
 * manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the wallet-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                  string `mapstructure:"SERVER_PORT"`
	DatabaseURL                 string `mapstructure:"DATABASE_URL"`
	RedisURL                    string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix        string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                 string `mapstructure:"RABBITMQ_URL"`
	AccountEventQueue           string `mapstructure:"ACCOUNT_EVENT_QUEUE"`
	AccountEventExchange        string `mapstructure:"ACCOUNT_EVENT_EXCHANGE"`
	WalletEventExchange         string `mapstructure:"WALLET_EVENT_EXCHANGE"`
	ValidatorBaseURL            string `mapstructure:"VALIDATOR_BASE_URL"`
	ValidatorAPIKey             string `mapstructure:"VALIDATOR_API_KEY"`
	ResetBaseURL                string `mapstructure:"RESET_BASE_URL"`
	IdentityJWKSURL             string `mapstructure:"IDENTITY_JWKS_URL"`
	InternalAPIKey              string `mapstructure:"INTERNAL_API_KEY"`
	TypingFlushDebounceMS       int    `mapstructure:"TYPING_FLUSH_DEBOUNCE_MS"`
	SessionIdleTimeoutMin       int    `mapstructure:"SESSION_IDLE_TIMEOUT_MIN"`
	BoxRewardRateLimitPerMinute int    `mapstructure:"BOX_REWARD_RATE_LIMIT_PER_MINUTE"`
	ResetSweepSchedule          string `mapstructure:"RESET_SWEEP_SCHEDULE"`
	SessionSweepSchedule        string `mapstructure:"SESSION_SWEEP_SCHEDULE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("ACCOUNT_EVENT_QUEUE", "wallet_service.account_snapshots")
	viper.SetDefault("ACCOUNT_EVENT_EXCHANGE", "apptech.events")
	viper.SetDefault("WALLET_EVENT_EXCHANGE", "apptech.events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "apptech:rate_limit")
	viper.SetDefault("TYPING_FLUSH_DEBOUNCE_MS", 1500)
	viper.SetDefault("SESSION_IDLE_TIMEOUT_MIN", 30)
	viper.SetDefault("BOX_REWARD_RATE_LIMIT_PER_MINUTE", 20)
	viper.SetDefault("RESET_SWEEP_SCHEDULE", "5 0 * * *")
	viper.SetDefault("SESSION_SWEEP_SCHEDULE", "*/10 * * * *")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "WALLET_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("ACCOUNT_EVENT_QUEUE")
	_ = viper.BindEnv("ACCOUNT_EVENT_EXCHANGE")
	_ = viper.BindEnv("WALLET_EVENT_EXCHANGE")
	_ = viper.BindEnv("VALIDATOR_BASE_URL")
	_ = viper.BindEnv("VALIDATOR_API_KEY")
	_ = viper.BindEnv("RESET_BASE_URL")
	_ = viper.BindEnv("IDENTITY_JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "WALLET_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("TYPING_FLUSH_DEBOUNCE_MS")
	_ = viper.BindEnv("SESSION_IDLE_TIMEOUT_MIN")
	_ = viper.BindEnv("BOX_REWARD_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RESET_SWEEP_SCHEDULE")
	_ = viper.BindEnv("SESSION_SWEEP_SCHEDULE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("WALLET_SERVICE_INTERNAL_API_KEY"))
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "apptech:rate_limit"
	}

	// The reset service is usually co-hosted with the validator; fall back to
	// the validator base when no dedicated base is configured.
	config.ResetBaseURL = strings.TrimSpace(config.ResetBaseURL)
	if config.ResetBaseURL == "" {
		config.ResetBaseURL = strings.TrimSpace(config.ValidatorBaseURL)
	}

	if config.TypingFlushDebounceMS <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive typing flush debounce; using default\" value=%d", config.TypingFlushDebounceMS)
		config.TypingFlushDebounceMS = 1500
	}
	if config.TypingFlushDebounceMS > 60000 {
		log.Printf("level=warn component=config msg=\"typing flush debounce too high; capping at 60s\" value=%d", config.TypingFlushDebounceMS)
		config.TypingFlushDebounceMS = 60000
	}
	if config.SessionIdleTimeoutMin <= 0 {
		config.SessionIdleTimeoutMin = 30
	}
	if config.BoxRewardRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative box reward rate limit; disabling\" value=%d", config.BoxRewardRateLimitPerMinute)
		config.BoxRewardRateLimitPerMinute = 0
	}

	return
}
