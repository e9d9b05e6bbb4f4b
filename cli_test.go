package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCli(t *testing.T, stdin string, args ...string) (map[string]string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		return nil, err
	}
	var headers map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &headers))
	return headers, nil
}

func TestSignCommand_KnownVector(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUMSUB_APP_TOKEN", "tok")
	t.Setenv("SUMSUB_SECRET_KEY", "test-secret")

	headers, err := runCli(t, "", "sign", "--body", `{"levelName":"basic-kyc"}`, "--timestamp", "1700000000")
	require.NoError(t, err)
	require.Equal(t, "tok", headers["X-App-Token"])
	require.Equal(t, "1700000000", headers["X-App-Access-Ts"])
	require.Equal(t, "application/json", headers["Content-Type"])
	require.Equal(t, "df2c47cb8515db44481e9cb916365d25d5ceb530afff0209f33f0afc2cb85fb5", headers["X-App-Access-Sig"])
}

func TestSignCommand_GetWithoutBody(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUMSUB_SECRET_KEY", "test-secret")

	headers, err := runCli(t, "", "sign", "-X", "GET", "--path", "/resources/status", "--timestamp", "1700000000")
	require.NoError(t, err)
	require.Equal(t, "87d737d6ee03f90e34680640fa4ff7ade78aa5f8653108923b4b68722d4e52fe", headers["X-App-Access-Sig"])
}

func TestSignCommand_BodyFromStdinAndFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUMSUB_SECRET_KEY", "test-secret")

	fromStdin, err := runCli(t, `{"levelName":"basic-kyc"}`, "sign", "--body-file", "-", "--timestamp", "1700000000")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "body.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"levelName":"basic-kyc"}`), 0o600))
	fromFile, err := runCli(t, "", "sign", "--body-file", path, "--timestamp", "1700000000")
	require.NoError(t, err)

	require.Equal(t, "df2c47cb8515db44481e9cb916365d25d5ceb530afff0209f33f0afc2cb85fb5", fromStdin["X-App-Access-Sig"])
	require.Equal(t, fromStdin, fromFile)
}

func TestSignCommand_BodyFlagsExclusive(t *testing.T) {
	clearEnv(t)

	_, err := runCli(t, "", "sign", "--body", "{}", "--body-file", "x.json")
	require.Error(t, err)
}

func TestServeCommand_RejectsIncompleteConfig(t *testing.T) {
	clearEnv(t)

	_, err := runCli(t, "", "serve")
	require.ErrorContains(t, err, "invalid configuration")
}

func TestCreateSubmissionRegistry(t *testing.T) {
	memory, err := createSubmissionRegistry(&Config{StorageType: "memory"})
	require.NoError(t, err)
	require.IsType(t, &InMemorySubmissionRegistry{}, memory)

	none, err := createSubmissionRegistry(&Config{StorageType: "none"})
	require.NoError(t, err)
	require.Nil(t, none)

	_, err = createSubmissionRegistry(&Config{StorageType: "postgres"})
	require.ErrorContains(t, err, "postgres is not a valid storage type")
}

func TestCreateNotifier(t *testing.T) {
	for _, backend := range []string{"resend", "smtp", "log"} {
		notifier, err := createNotifier(&EmailConfig{Backend: backend, From: "kyc@example.com"})
		require.NoError(t, err)
		require.Equal(t, backend, notifier.Backend())
	}

	_, err := createNotifier(&EmailConfig{Backend: "fax"})
	require.Error(t, err)
}

func TestLoadEmailTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "email.html")
	require.NoError(t, os.WriteFile(path, []byte(`<a href="{{.Link}}">verify, {{.Greeting}}</a>`), 0o600))

	tmpl, err := loadEmailTemplate(&EmailConfig{Subject: "Verify", TemplatePath: path})
	require.NoError(t, err)

	msg, err := tmpl.Render("a@b.com", "", "https://verify/xyz")
	require.NoError(t, err)
	require.Equal(t, "Verify", msg.Subject)
	require.Equal(t, `<a href="https://verify/xyz">verify, a@b.com</a>`, msg.HTMLBody)

	_, err = loadEmailTemplate(&EmailConfig{TemplatePath: filepath.Join(t.TempDir(), "missing.html")})
	require.ErrorContains(t, err, "failed to read email template")
}
