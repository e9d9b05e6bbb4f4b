package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// clearEnv blanks every bound variable so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, envs := range envBindings {
		for _, env := range envs {
			t.Setenv(env, "")
		}
	}
}

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	config, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", config.ServerConfig.Host)
	require.Equal(t, 8080, config.ServerConfig.Port)
	require.Equal(t, "https://api.sumsub.com", config.Kyc.BaseUrl)
	require.Equal(t, "id-and-liveness", config.Kyc.LevelName)
	require.Equal(t, 1800, config.Kyc.LinkTtlSecs)
	require.Equal(t, "resend", config.Email.Backend)
	require.Equal(t, PolicyLog, config.NotificationFailurePolicy)
	require.Equal(t, "memory", config.StorageType)
	require.Equal(t, 86400, config.ReplayTtlSecs)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUMSUB_APP_TOKEN", "tok")
	t.Setenv("SUMSUB_SECRET_KEY", "sec")
	t.Setenv("LEVEL_NAME", "basic-kyc")
	t.Setenv("REDIRECT_URL", "https://example.com/done")
	t.Setenv("RESEND_API_KEY", "re_123")
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	config, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "tok", config.Kyc.AppToken)
	require.Equal(t, "sec", config.Kyc.SecretKey)
	require.Equal(t, "basic-kyc", config.Kyc.LevelName)
	require.Equal(t, "https://example.com/done", config.Kyc.RedirectUrl)
	require.Equal(t, "re_123", config.Email.ResendApiKey)
	require.Equal(t, 9090, config.ServerConfig.Port)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, config.ServerConfig.AllowedOrigins)
	require.NoError(t, config.Validate())
}

func TestLoadConfig_FileWithEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUMSUB_SECRET_KEY", "from-env")

	path := writeConfigFile(t, "config.yaml", `
server_config:
  port: 8443
  enable_debug_route: true
kyc:
  app_token: file-token
  secret_key: file-secret
  redirect_url: https://example.com/done
email:
  backend: smtp
  from: kyc@example.com
  smtp:
    host: mail.example.com
notification_failure_policy: fail
storage_type: redis
redis_config:
  host: redis.local
submission:
  nested_key: data
  ignored_keys: [formID, source]
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 8443, config.ServerConfig.Port)
	require.True(t, config.ServerConfig.EnableDebugRoute)
	require.Equal(t, "file-token", config.Kyc.AppToken)
	require.Equal(t, "from-env", config.Kyc.SecretKey)
	require.Equal(t, "smtp", config.Email.Backend)
	require.Equal(t, "mail.example.com", config.Email.Smtp.Host)
	require.Equal(t, 587, config.Email.Smtp.Port)
	require.Equal(t, PolicyFail, config.NotificationFailurePolicy)
	require.Equal(t, "redis.local", config.RedisConfig.Host)
	require.Equal(t, 6379, config.RedisConfig.Port)
	require.Equal(t, "kyc-onboarding", config.RedisConfig.Namespace)
	require.Equal(t, "data", config.Submission.NestedKey)
	require.Equal(t, []string{"formID", "source"}, config.Submission.IgnoredKeys)
	require.NoError(t, config.Validate())
}

func TestLoadConfig_JSONFile(t *testing.T) {
	clearEnv(t)

	path := writeConfigFile(t, "config.json", `{"kyc": {"level_name": "json-level"}, "log_level": "debug"}`)
	config, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "json-level", config.Kyc.LevelName)
	require.Equal(t, "debug", config.LogLevel)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorContains(t, err, "failed to read config file")
}

func TestValidate_ReportsAllMissing(t *testing.T) {
	clearEnv(t)

	config, err := LoadConfig("")
	require.NoError(t, err)

	err = config.Validate()
	require.Error(t, err)
	require.ErrorContains(t, err, "kyc.app_token is required")
	require.ErrorContains(t, err, "kyc.secret_key is required")
	require.ErrorContains(t, err, "kyc.redirect_url is required")
	require.ErrorContains(t, err, "email.resend_api_key is required")
}

func TestValidate_RejectsUnknownValues(t *testing.T) {
	config := Config{
		Kyc: KycConfig{
			BaseUrl:     "https://api.sumsub.com",
			AppToken:    "tok",
			SecretKey:   "sec",
			LevelName:   "basic-kyc",
			RedirectUrl: "https://example.com/done",
		},
		Email:                     EmailConfig{Backend: "pigeon"},
		NotificationFailurePolicy: "maybe",
	}

	err := config.Validate()
	require.ErrorContains(t, err, `"pigeon" is not a valid email backend`)
	require.ErrorContains(t, err, `"maybe" is not a valid notification failure policy`)
}

func TestValidate_LogBackendNeedsNoCredentials(t *testing.T) {
	config := Config{
		Kyc: KycConfig{
			BaseUrl:     "https://api.sumsub.com",
			AppToken:    "tok",
			SecretKey:   "sec",
			LevelName:   "basic-kyc",
			RedirectUrl: "https://example.com/done",
		},
		Email:                     EmailConfig{Backend: "log"},
		NotificationFailurePolicy: PolicyLog,
	}
	require.NoError(t, config.Validate())
}
