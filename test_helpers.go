package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"go-kyc-onboarding/notification"
	"go-kyc-onboarding/submission"

	"github.com/stretchr/testify/require"
)

const testBaseUrl = "http://localhost:8081"

var testConfig = ServerConfig{
	Host:             "localhost",
	Port:             8081,
	UseTls:           false,
	TlsCertPath:      "",
	TlsPrivKeyPath:   "",
	EnableDebugRoute: true,
}

type stateOpt func(*ServerState)

func withKycClient(c KycClient) stateOpt {
	return func(s *ServerState) { s.kycClient = c }
}

func withNotifier(n notification.Notifier) stateOpt {
	return func(s *ServerState) { s.notifier = n }
}

func withRegistry(r SubmissionRegistry) stateOpt {
	return func(s *ServerState) { s.registry = r }
}

func withFailurePolicy(p NotificationFailurePolicy) stateOpt {
	return func(s *ServerState) { s.failurePolicy = p }
}

func newTestState(t *testing.T, opts ...stateOpt) *ServerState {
	t.Helper()

	tmpl, err := notification.NewTemplate("", "")
	require.NoError(t, err)

	state := &ServerState{
		normalizer:    submission.NewNormalizer("", "", submission.DefaultIgnoredKeys),
		kycClient:     &fakeKycClient{url: "https://verify/xyz"},
		notifier:      &fakeNotifier{},
		emailTemplate: tmpl,
		registry:      NewInMemorySubmissionRegistry(DefaultReplayTtl),
		failurePolicy: PolicyLog,
	}
	for _, o := range opts {
		o(state)
	}
	return state
}

func startTestServer(t *testing.T, state *ServerState) *Server {
	t.Helper()

	srv, err := NewServer(state, testConfig)
	require.NoError(t, err)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("server error: %v", err)
		}
	}()

	waitUntilHealthy(t, testBaseUrl+"/api/health")
	t.Cleanup(func() {
		if err := srv.Stop(); err != nil {
			t.Logf("error shutting down server: %v", err)
		}
	})
	return srv
}

func waitUntilHealthy(t *testing.T, url string) {
	t.Helper()
	const maxAttempts = 50
	for i := 0; i < maxAttempts; i++ {
		if resp, err := http.Get(url); err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("server did not start in time")
}

func postJSON[T any](t *testing.T, url string, payload any) (*http.Response, []byte, *T) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(b)
	}
	return post[T](t, url, "application/json", body)
}

func post[T any](t *testing.T, url, contentType string, body io.Reader) (*http.Response, []byte, *T) {
	t.Helper()

	resp, err := http.Post(url, contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var v T
	_ = json.Unmarshal(respBody, &v)
	return resp, respBody, &v
}

func mustStatus(t *testing.T, resp *http.Response, want int, body []byte) {
	t.Helper()
	require.Equalf(t, want, resp.StatusCode, "body: %s", body)
}

// test doubles

type fakeKycClient struct {
	mutex      sync.Mutex
	url        string
	err        error
	onCall     func()
	applicants []submission.Applicant
}

func (f *fakeKycClient) CreateVerificationLink(_ context.Context, applicant submission.Applicant) (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.applicants = append(f.applicants, applicant)
	if f.onCall != nil {
		f.onCall()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func (f *fakeKycClient) calls() []submission.Applicant {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]submission.Applicant(nil), f.applicants...)
}

type fakeNotifier struct {
	mutex    sync.Mutex
	err      error
	messages []notification.Message
}

func (f *fakeNotifier) Send(_ context.Context, msg notification.Message) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeNotifier) Backend() string { return "fake" }

func (f *fakeNotifier) sent() []notification.Message {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]notification.Message(nil), f.messages...)
}
