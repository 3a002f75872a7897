/**
 * @description
 * This package handles the configuration management for the credits-service. It
 * uses the Viper library to read configuration from environment variables and an
 * optional .env file.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the credits-service.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	ClerkJWKSURL               string `mapstructure:"CLERK_JWKS_URL"`
	ClerkIssuer                string `mapstructure:"CLERK_ISSUER"`
	ClerkSecretKey             string `mapstructure:"CLERK_SECRET_KEY"`
	ClerkAPIBaseURL            string `mapstructure:"CLERK_API_BASE_URL"`
	ClerkWebhookSecret         string `mapstructure:"CLERK_WEBHOOK_SECRET"`
	WebhookToleranceSeconds    int    `mapstructure:"WEBHOOK_TOLERANCE_SECONDS"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	AgentEventExchange         string `mapstructure:"AGENT_EVENT_EXCHANGE"`
	AgentRunRoutingKey         string `mapstructure:"AGENT_RUN_ROUTING_KEY"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	ActionRateLimitPerMinute   int    `mapstructure:"ACTION_RATE_LIMIT_PER_MINUTE"`
	AllowSelfServicePlanChange bool   `mapstructure:"ALLOW_SELF_SERVICE_PLAN_CHANGE"`
	AllowAuthHeaderFallback    bool   `mapstructure:"ALLOW_AUTH_HEADER_FALLBACK"`
	CORSAllowedOrigins         string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// LoadConfig reads configuration from environment variables and an optional .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("CLERK_API_BASE_URL", "https://api.clerk.com")
	viper.SetDefault("WEBHOOK_TOLERANCE_SECONDS", 300)
	viper.SetDefault("AGENT_EVENT_EXCHANGE", "code_agent")
	viper.SetDefault("AGENT_RUN_ROUTING_KEY", "code-agent.run")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "buildbuddy:rate_limit")
	viper.SetDefault("ACTION_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("ALLOW_SELF_SERVICE_PLAN_CHANGE", false)
	viper.SetDefault("ALLOW_AUTH_HEADER_FALLBACK", false)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("CLERK_ISSUER")
	_ = viper.BindEnv("CLERK_SECRET_KEY")
	_ = viper.BindEnv("CLERK_API_BASE_URL")
	_ = viper.BindEnv("CLERK_WEBHOOK_SECRET", "CLERK_WEBHOOK_SECRET", "CLERK_WEBHOOK_SIGNING_SECRET")
	_ = viper.BindEnv("WEBHOOK_TOLERANCE_SECONDS")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("AGENT_EVENT_EXCHANGE")
	_ = viper.BindEnv("AGENT_RUN_ROUTING_KEY")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("ACTION_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("ALLOW_SELF_SERVICE_PLAN_CHANGE")
	_ = viper.BindEnv("ALLOW_AUTH_HEADER_FALLBACK")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("failed to read config file; using environment values", "component", "config", "error", err)
		}
		err = nil
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.ClerkWebhookSecret = strings.TrimSpace(config.ClerkWebhookSecret)
	if config.WebhookToleranceSeconds <= 0 {
		config.WebhookToleranceSeconds = 300
	}
	if config.ActionRateLimitPerMinute < 0 {
		slog.Warn("negative action rate limit configured; disabling limiter", "component", "config", "value", config.ActionRateLimitPerMinute)
		config.ActionRateLimitPerMinute = 0
	}
	return
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS into its non-empty entries.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
