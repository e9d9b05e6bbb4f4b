package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go-kyc-onboarding/logging"
	"go-kyc-onboarding/notification"
	"go-kyc-onboarding/redis"
	"go-kyc-onboarding/signing"
	"go-kyc-onboarding/submission"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "kyc-onboarding",
		Short:         "Turns form submissions into KYC verification links",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(signCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		Long: `Start the webhook server.

Settings are read from the optional config file and can be overridden by
environment variables such as SUMSUB_APP_TOKEN, SUMSUB_SECRET_KEY and PORT.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path for the config file to use (JSON or YAML)")
	return cmd
}

func runServe(configPath string) error {
	config, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	logging.InitLogger(config.LogLevel, config.LogFormat)

	if configPath != "" {
		slog.Info("Using config file", "path", configPath)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	serverState, err := createServerState(&config)
	if err != nil {
		return err
	}

	server, err := NewServer(serverState, config.ServerConfig)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to listen and serve: %w", err)
		}
		return nil
	case sig := <-sigCh:
		slog.Info("Received signal", "signal", sig.String())
		return server.Stop()
	}
}

func createServerState(config *Config) (*ServerState, error) {
	signer := signing.NewSigner(config.Kyc.AppToken, config.Kyc.SecretKey)
	kycClient := NewSumsubClient(config.Kyc, signer)

	notifier, err := createNotifier(&config.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate notifier: %w", err)
	}

	emailTemplate, err := loadEmailTemplate(&config.Email)
	if err != nil {
		return nil, err
	}

	registry, err := createSubmissionRegistry(config)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate submission registry: %w", err)
	}

	ignoredKeys := config.Submission.IgnoredKeys
	if len(ignoredKeys) == 0 {
		ignoredKeys = submission.DefaultIgnoredKeys
	}
	normalizer := submission.NewNormalizer(config.Submission.NestedKey, config.Submission.UserIdPrefix, ignoredKeys)

	slog.Info("Notification failure policy", "policy", config.NotificationFailurePolicy)

	return &ServerState{
		normalizer:    normalizer,
		kycClient:     kycClient,
		notifier:      notifier,
		emailTemplate: emailTemplate,
		registry:      registry,
		failurePolicy: config.NotificationFailurePolicy,
	}, nil
}

func createNotifier(config *EmailConfig) (notification.Notifier, error) {
	switch config.Backend {
	case "resend":
		slog.Info("Using Resend email delivery", "from", config.From)
		return notification.NewResendNotifier(config.ResendApiKey, config.From), nil
	case "smtp":
		slog.Info("Using SMTP email delivery", "host", config.Smtp.Host, "port", config.Smtp.Port)
		return notification.NewSMTPNotifier(config.Smtp, config.From), nil
	case "log":
		slog.Warn("Email delivery disabled, verification links are only logged")
		return notification.LogNotifier{}, nil
	}
	return nil, fmt.Errorf("%v is not a valid email backend", config.Backend)
}

func loadEmailTemplate(config *EmailConfig) (*notification.Template, error) {
	body := ""
	if config.TemplatePath != "" {
		b, err := os.ReadFile(config.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read email template: %w", err)
		}
		body = string(b)
	}
	return notification.NewTemplate(config.Subject, body)
}

func createSubmissionRegistry(config *Config) (SubmissionRegistry, error) {
	ttl := time.Duration(config.ReplayTtlSecs) * time.Second
	if ttl <= 0 {
		ttl = DefaultReplayTtl
	}

	if config.StorageType == "redis" {
		slog.Info("Using redis submission registry")
		client, err := redis.NewRedisClient(&config.RedisConfig)
		if err != nil {
			return nil, err
		}
		return NewRedisSubmissionRegistry(client, config.RedisConfig.Namespace, ttl), nil
	}
	if config.StorageType == "redis_sentinel" {
		slog.Info("Using redis sentinel submission registry")
		client, err := redis.NewRedisSentinelClient(&config.RedisSentinelConfig)
		if err != nil {
			return nil, err
		}
		return NewRedisSubmissionRegistry(client, config.RedisSentinelConfig.Namespace, ttl), nil
	}
	if config.StorageType == "memory" {
		slog.Info("Using in memory submission registry")
		return NewInMemorySubmissionRegistry(ttl), nil
	}
	if config.StorageType == "none" {
		slog.Warn("Replay guard disabled, redelivered submissions will be processed again")
		return nil, nil
	}
	return nil, fmt.Errorf("%v is not a valid storage type", config.StorageType)
}

func signCmd() *cobra.Command {
	var (
		configPath string
		method     string
		path       string
		body       string
		bodyFile   string
		timestamp  int64
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print the authentication headers for a provider request",
		Long: `Print the authentication headers for a provider request as JSON.

The app token and secret come from the config file or from the
SUMSUB_APP_TOKEN and SUMSUB_SECRET_KEY environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := LoadConfig(configPath)
			if err != nil {
				return err
			}

			payload := []byte(body)
			if bodyFile != "" {
				if payload, err = readBody(cmd, bodyFile); err != nil {
					return err
				}
			}

			signer := signing.NewSigner(config.Kyc.AppToken, config.Kyc.SecretKey)
			var headers signing.Headers
			if timestamp > 0 {
				headers = signer.SignAt(timestamp, method, path, payload)
			} else {
				headers = signer.Sign(method, path, payload)
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(map[string]string{
				signing.HeaderAppToken:  headers.AppToken,
				signing.HeaderSignature: headers.Signature,
				signing.HeaderTimestamp: strconv.FormatInt(headers.Timestamp, 10),
				"Content-Type":          headers.ContentType,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path for the config file to use")
	cmd.Flags().StringVarP(&method, "method", "X", http.MethodPost, "HTTP method of the request")
	cmd.Flags().StringVarP(&path, "path", "p", WebSdkLinkPath, "Request path including the query string")
	cmd.Flags().StringVarP(&body, "body", "d", "", "Request body")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "Read the request body from a file, - for stdin")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "Unix timestamp to sign with instead of the current time")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")

	return cmd
}

func readBody(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read body file: %w", err)
	}
	return b, nil
}
