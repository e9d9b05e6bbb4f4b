package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"go-kyc-onboarding/notification"
	"go-kyc-onboarding/redis"
)

type NotificationFailurePolicy string

const (
	// PolicyLog logs a failed email and still answers with the link.
	PolicyLog NotificationFailurePolicy = "log"
	// PolicyFail turns a failed email into a failed request.
	PolicyFail NotificationFailurePolicy = "fail"
)

type Config struct {
	ServerConfig ServerConfig `mapstructure:"server_config"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	Kyc        KycConfig        `mapstructure:"kyc"`
	Email      EmailConfig      `mapstructure:"email"`
	Submission SubmissionConfig `mapstructure:"submission"`

	NotificationFailurePolicy NotificationFailurePolicy `mapstructure:"notification_failure_policy"`

	StorageType         string                    `mapstructure:"storage_type"`
	ReplayTtlSecs       int                       `mapstructure:"replay_ttl_secs"`
	RedisConfig         redis.RedisConfig         `mapstructure:"redis_config"`
	RedisSentinelConfig redis.RedisSentinelConfig `mapstructure:"redis_sentinel_config"`
}

type KycConfig struct {
	BaseUrl     string `mapstructure:"base_url"`
	AppToken    string `mapstructure:"app_token"`
	SecretKey   string `mapstructure:"secret_key"`
	LevelName   string `mapstructure:"level_name"`
	RedirectUrl string `mapstructure:"redirect_url"`
	LinkTtlSecs int    `mapstructure:"link_ttl_secs"`
	TimeoutSecs int    `mapstructure:"timeout_secs"`
}

type EmailConfig struct {
	Backend      string                  `mapstructure:"backend"` // resend, smtp or log
	From         string                  `mapstructure:"from"`
	Subject      string                  `mapstructure:"subject"`
	TemplatePath string                  `mapstructure:"template_path"`
	ResendApiKey string                  `mapstructure:"resend_api_key"`
	Smtp         notification.SMTPConfig `mapstructure:"smtp"`
}

type SubmissionConfig struct {
	NestedKey    string   `mapstructure:"nested_key"`
	UserIdPrefix string   `mapstructure:"user_id_prefix"`
	IgnoredKeys  []string `mapstructure:"ignored_keys"`
}

// environment variables that override file settings
var envBindings = map[string][]string{
	"server_config.host":            {"HOST"},
	"server_config.port":            {"PORT"},
	"server_config.allowed_origins": {"CORS_ALLOWED_ORIGINS"},
	"log_level":                     {"LOG_LEVEL"},
	"log_format":                    {"LOG_FORMAT"},
	"kyc.base_url":                  {"SUMSUB_BASE_URL"},
	"kyc.app_token":                 {"SUMSUB_APP_TOKEN"},
	"kyc.secret_key":                {"SUMSUB_SECRET_KEY"},
	"kyc.level_name":                {"LEVEL_NAME", "SUMSUB_LEVEL_NAME"},
	"kyc.redirect_url":              {"REDIRECT_URL", "SUMSUB_REDIRECT_URL"},
	"email.backend":                 {"EMAIL_BACKEND"},
	"email.from":                    {"EMAIL_FROM", "RESEND_FROM"},
	"email.resend_api_key":          {"RESEND_API_KEY"},
	"email.smtp.host":               {"SMTP_HOST"},
	"email.smtp.port":               {"SMTP_PORT"},
	"email.smtp.username":           {"SMTP_USERNAME"},
	"email.smtp.password":           {"SMTP_PASSWORD"},
	"email.smtp.tls_policy":         {"SMTP_TLS_POLICY"},
	"notification_failure_policy":   {"NOTIFICATION_FAILURE_POLICY"},
	"storage_type":                  {"STORAGE_TYPE"},
	"redis_config.host":             {"REDIS_HOST"},
	"redis_config.port":             {"REDIS_PORT"},
	"redis_config.password":         {"REDIS_PASSWORD"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_config.host", "0.0.0.0")
	v.SetDefault("server_config.port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("kyc.base_url", "https://api.sumsub.com")
	v.SetDefault("kyc.level_name", "id-and-liveness")
	v.SetDefault("kyc.link_ttl_secs", 1800)
	v.SetDefault("kyc.timeout_secs", 30)
	v.SetDefault("email.backend", "resend")
	v.SetDefault("email.from", "onboarding@resend.dev")
	v.SetDefault("email.subject", notification.DefaultSubject)
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.tls_policy", "mandatory")
	v.SetDefault("notification_failure_policy", string(PolicyLog))
	v.SetDefault("storage_type", "memory")
	v.SetDefault("replay_ttl_secs", int(DefaultReplayTtl.Seconds()))
	v.SetDefault("redis_config.port", 6379)
	v.SetDefault("redis_config.namespace", "kyc-onboarding")
}

// LoadConfig reads the optional config file at path (JSON or YAML) and
// applies environment overrides on top of it.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return Config{}, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return config, nil
}

// Validate checks that required settings are present. Formats are not checked.
func (c *Config) Validate() error {
	var errs []error
	require := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	require(c.Kyc.BaseUrl, "kyc.base_url")
	require(c.Kyc.AppToken, "kyc.app_token")
	require(c.Kyc.SecretKey, "kyc.secret_key")
	require(c.Kyc.LevelName, "kyc.level_name")
	require(c.Kyc.RedirectUrl, "kyc.redirect_url")

	switch c.Email.Backend {
	case "resend":
		require(c.Email.From, "email.from")
		require(c.Email.ResendApiKey, "email.resend_api_key")
	case "smtp":
		require(c.Email.From, "email.from")
		require(c.Email.Smtp.Host, "email.smtp.host")
	case "log":
	default:
		errs = append(errs, fmt.Errorf("%q is not a valid email backend", c.Email.Backend))
	}

	switch c.NotificationFailurePolicy {
	case PolicyLog, PolicyFail:
	default:
		errs = append(errs, fmt.Errorf("%q is not a valid notification failure policy", c.NotificationFailurePolicy))
	}

	return errors.Join(errs...)
}
