package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go-kyc-onboarding/metrics"
	"go-kyc-onboarding/models"
	"go-kyc-onboarding/notification"
	"go-kyc-onboarding/submission"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const ErrorInternal = "error:internal"
const ERR_MARSHAL = "failed to marshal response message"
const ERR_MALFORMED_SUBMISSION = "malformed submission"
const ERR_MISSING_EMAIL = "missing email"
const ERR_PROVIDER_UNAVAILABLE = "kyc provider unavailable"
const ERR_NOTIFICATION_FAILED = "failed to send verification email"
const ERR_REPLAY_GUARD = "failed to check submission replay"

const releaseTimeout = 5 * time.Second

type ServerConfig struct {
	Host             string   `mapstructure:"host"`
	Port             int      `mapstructure:"port"`
	UseTls           bool     `mapstructure:"use_tls"`
	TlsPrivKeyPath   string   `mapstructure:"tls_priv_key_path"`
	TlsCertPath      string   `mapstructure:"tls_cert_path"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	EnableDebugRoute bool     `mapstructure:"enable_debug_route"`
}

type ServerState struct {
	normalizer    *submission.Normalizer
	kycClient     KycClient
	notifier      notification.Notifier
	emailTemplate *notification.Template
	registry      SubmissionRegistry
	failurePolicy NotificationFailurePolicy
}

type Server struct {
	server *http.Server
	config ServerConfig
}

// NotificationError is an email failure under PolicyFail.
type NotificationError struct {
	Err error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("%s: %v", ERR_NOTIFICATION_FAILED, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

func (s *Server) ListenAndServe() error {
	if s.config.UseTls {
		slog.Info("Starting server with TLS", "host", s.config.Host, "port", s.config.Port, "cert", s.config.TlsCertPath, "key", s.config.TlsPrivKeyPath)
		return s.server.ListenAndServeTLS(s.config.TlsCertPath, s.config.TlsPrivKeyPath)
	} else {
		slog.Info("Starting server without TLS", "host", s.config.Host, "port", s.config.Port)
		return s.server.ListenAndServe()
	}
}

func (s *Server) Stop() error {
	slog.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err != nil {
		slog.Error("Error during server shutdown", "error", err)
	} else {
		slog.Info("Server shut down successfully")
	}
	return err
}

func NewServer(state *ServerState, config ServerConfig) (*Server, error) {
	slog.Info("Creating new server", "host", config.Host, "port", config.Port, "tls", config.UseTls)
	metrics.Register()

	router := NewRouter(state, config)

	addr := fmt.Sprintf("%v:%v", config.Host, config.Port)
	srv := &http.Server{
		Handler:      router,
		Addr:         addr,
		WriteTimeout: 45 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	slog.Info("Server created successfully", "address", addr)
	return &Server{
		server: srv,
		config: config,
	}, nil
}

// NewRouter registers all routes. GET routes are restricted with Methods;
// POST handlers check the method themselves so that CORS pre-flight requests
// reach the middleware.
func NewRouter(state *ServerState, config ServerConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestLoggingMiddleware)
	if len(config.AllowedOrigins) > 0 {
		router.Use(corsMiddleware(config.AllowedOrigins))
	}

	router.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("Health check request received")
		err := json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		if err != nil {
			slog.Error("failed to write body to http response", "error", err)
		}
	}).Methods(http.MethodGet)

	router.HandleFunc("/jotform-webhook", func(w http.ResponseWriter, r *http.Request) {
		handleFormWebhook(state, w, r)
	})
	router.HandleFunc("/api/verification-link", func(w http.ResponseWriter, r *http.Request) {
		handleCreateVerificationLink(state, w, r)
	})
	router.HandleFunc("/sumsub-webhook", handleProviderEvent)
	if config.EnableDebugRoute {
		slog.Warn("Debug route enabled, submissions will be echoed back to the caller")
		router.HandleFunc("/jotform-debug", func(w http.ResponseWriter, r *http.Request) {
			handleDebugSubmission(state, w, r)
		})
	}
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if _, err := w.Write([]byte("KYC onboarding service running\n")); err != nil {
			slog.Error("failed to write body to http response", "error", err)
		}
	}).Methods(http.MethodGet)

	slog.Debug("Registered all routes")
	return router
}

// handleFormWebhook runs the pipeline for a form-builder webhook. Deliveries
// carrying a submissionID are processed at most once while their claim holds.
func handleFormWebhook(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	slog.Info("Received form submission webhook")

	sub, err := submission.Parse(r)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("malformed").Inc()
		respondWithErr(w, http.StatusBadRequest, ERR_MALFORMED_SUBMISSION, "failed to parse submission", err)
		return
	}
	slog.Debug("Submission parsed", "fields", len(sub))

	submissionId, _ := sub.Lookup("submissionID")
	if submissionId != "" && state.registry != nil {
		claimed, err := state.registry.Claim(r.Context(), submissionId)
		if err != nil {
			respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_REPLAY_GUARD, err)
			return
		}
		if !claimed {
			slog.Info("Ignoring redelivered submission", "submission_id", submissionId)
			metrics.SubmissionsTotal.WithLabelValues("duplicate").Inc()
			if err := writeJSON(w, http.StatusOK, models.OnboardingResponse{Status: "duplicate"}); err != nil {
				respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
			}
			return
		}
	}

	response, err := onboardApplicant(r.Context(), state, sub)
	if err != nil {
		if submissionId != "" && state.registry != nil {
			releaseClaim(r.Context(), state.registry, submissionId)
		}
		respondWithOnboardingErr(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
		return
	}
	slog.Info("Form submission processed successfully", "user_id", response.UserId, "submission_id", submissionId, "email_sent", response.EmailSent)
}

// releaseClaim drops the claim even when the caller has already gone away.
func releaseClaim(ctx context.Context, registry SubmissionRegistry, submissionId string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := registry.Release(ctx, submissionId); err != nil {
		slog.Error("failed to release submission claim", "submission_id", submissionId, "error", err)
	}
}

// handleCreateVerificationLink is the direct API transport: same pipeline,
// no replay guard.
func handleCreateVerificationLink(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	slog.Info("Received request to create verification link")

	sub, err := submission.Parse(r)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("malformed").Inc()
		respondWithErr(w, http.StatusBadRequest, ERR_MALFORMED_SUBMISSION, "failed to parse request", err)
		return
	}

	response, err := onboardApplicant(r.Context(), state, sub)
	if err != nil {
		respondWithOnboardingErr(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
		return
	}
	slog.Info("Verification link request processed successfully", "user_id", response.UserId, "email_sent", response.EmailSent)
}

// onboardApplicant normalises the submission, requests the verification link
// and emails it. The outcome of the email is governed by the failure policy.
func onboardApplicant(ctx context.Context, state *ServerState, sub submission.Submission) (models.OnboardingResponse, error) {
	applicant, err := state.normalizer.Normalize(sub)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("missing_email").Inc()
		return models.OnboardingResponse{}, err
	}
	slog.Debug("Submission normalized", "user_id", applicant.UserID, "has_phone", applicant.Phone != "")

	verificationUrl, err := state.kycClient.CreateVerificationLink(ctx, applicant)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("provider_error").Inc()
		return models.OnboardingResponse{}, err
	}

	emailSent := true
	if err := sendVerificationEmail(ctx, state, applicant, verificationUrl); err != nil {
		emailSent = false
		if state.failurePolicy == PolicyFail {
			metrics.SubmissionsTotal.WithLabelValues("notification_error").Inc()
			return models.OnboardingResponse{}, &NotificationError{Err: err}
		}
		slog.Error(ERR_NOTIFICATION_FAILED, "user_id", applicant.UserID, "error", err)
	}

	metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()
	return models.OnboardingResponse{
		Status:          "ok",
		UserId:          applicant.UserID,
		VerificationUrl: verificationUrl,
		EmailSent:       emailSent,
	}, nil
}

func sendVerificationEmail(ctx context.Context, state *ServerState, applicant submission.Applicant, verificationUrl string) error {
	msg, err := state.emailTemplate.Render(applicant.Email, applicant.Name, verificationUrl)
	if err != nil {
		return err
	}

	backend := state.notifier.Backend()
	if err := state.notifier.Send(ctx, msg); err != nil {
		metrics.NotificationsTotal.WithLabelValues(backend, "failed").Inc()
		return err
	}
	metrics.NotificationsTotal.WithLabelValues(backend, "sent").Inc()
	slog.Debug("Verification email sent", "user_id", applicant.UserID, "backend", backend)
	return nil
}

// respondWithOnboardingErr maps pipeline errors onto HTTP answers. Provider
// rejections keep the provider's status and body.
func respondWithOnboardingErr(w http.ResponseWriter, err error) {
	var providerErr *ProviderError
	var notificationErr *NotificationError

	switch {
	case errors.Is(err, submission.ErrNoEmail):
		respondWithErr(w, http.StatusBadRequest, ERR_MISSING_EMAIL, "rejected submission without email", err)
	case errors.As(err, &providerErr):
		code := providerErr.StatusCode
		if code < 400 {
			code = http.StatusBadGateway
		}
		respondWithErr(w, code, providerErr.Body, "kyc provider rejected verification link request", err)
	case errors.As(err, &notificationErr):
		respondWithErr(w, http.StatusBadGateway, ERR_NOTIFICATION_FAILED, ERR_NOTIFICATION_FAILED, err)
	default:
		respondWithErr(w, http.StatusBadGateway, ERR_PROVIDER_UNAVAILABLE, "failed to create verification link", err)
	}
}

type debugResponse struct {
	Submission submission.Submission `json:"submission"`
	Applicant  submission.Applicant  `json:"applicant"`
	Error      string                `json:"error,omitempty"`
}

// handleDebugSubmission echoes what the normalizer makes of a submission
// without calling the provider.
func handleDebugSubmission(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	sub, err := submission.Parse(r)
	if err != nil {
		respondWithErr(w, http.StatusBadRequest, ERR_MALFORMED_SUBMISSION, "failed to parse debug submission", err)
		return
	}

	unwrapped := state.normalizer.Unwrap(sub)
	applicant, err := state.normalizer.Normalize(sub)
	response := debugResponse{Submission: unwrapped, Applicant: applicant}
	if err != nil {
		response.Error = err.Error()
	}

	slog.Debug("Debug submission received", "fields", len(sub))
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

// event types reported by the provider; anything else is counted as "other"
var knownProviderEvents = map[string]struct{}{
	"applicantCreated":               {},
	"applicantPending":               {},
	"applicantReviewed":              {},
	"applicantOnHold":                {},
	"applicantActionPending":         {},
	"applicantActionReviewed":        {},
	"applicantActionOnHold":          {},
	"applicantPersonalInfoChanged":   {},
	"applicantPrechecked":            {},
	"applicantReset":                 {},
	"applicantDeleted":               {},
	"applicantLevelChanged":          {},
	"applicantWorkflowCompleted":     {},
	"applicantTagsChanged":           {},
	"applicantActivated":             {},
	"applicantDeactivated":           {},
	"videoIdentStatusChanged":        {},
	"videoIdentCompositionCompleted": {},
}

func providerEventLabel(eventType string) string {
	if _, ok := knownProviderEvents[eventType]; ok {
		return eventType
	}
	return "other"
}

// handleProviderEvent acknowledges review-status callbacks from the provider.
func handleProviderEvent(w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	var event models.ProviderEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		respondWithErr(w, http.StatusBadRequest, "invalid event", "failed to decode provider event", err)
		return
	}

	answer := ""
	if event.ReviewResult != nil {
		answer = event.ReviewResult.ReviewAnswer
	}
	metrics.ProviderEventsTotal.WithLabelValues(providerEventLabel(event.Type)).Inc()
	slog.Info("Provider event received", "type", event.Type, "applicant_id", event.ApplicantId, "user_id", event.ExternalUserId, "review_status", event.ReviewStatus, "review_answer", answer)

	if err := writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func respondWithErr(w http.ResponseWriter, code int, responseBody string, logMsg string, e error) {
	slog.Error(logMsg, "error", e, "status_code", code)
	payload, err := json.Marshal(models.ErrorResponse{Error: responseBody})
	if err != nil {
		payload = []byte(`{"error":"error:internal"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(payload); err != nil {
		slog.Error("failed to write body to http response", "error", err)
	}
}

// helpers ------------

func closeRequestBody(r *http.Request) {
	if err := r.Body.Close(); err != nil {
		slog.Error("failed to close request body", "error", err)
	}
}

func requirePOST(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		slog.Debug("Non-POST request rejected", "method", r.Method, "path", r.URL.Path)
		respondWithErr(w, http.StatusMethodNotAllowed, "method not allowed", "invalid method", nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal JSON payload", "error", err)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(payload); err != nil {
		slog.Error("failed to write body to http response", "error", err)
	}
	return nil
}
