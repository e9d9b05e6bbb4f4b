package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go-kyc-onboarding/metrics"
	"go-kyc-onboarding/models"
	"go-kyc-onboarding/signing"
	"go-kyc-onboarding/submission"
)

const WebSdkLinkPath = "/resources/sdkIntegrations/levels/-/websdkLink"

const maxProviderErrorBody = 64 << 10

// ProviderError is a non-2xx answer from the KYC provider. Body is passed
// through to the caller untouched.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("kyc provider returned status %d: %s", e.StatusCode, e.Body)
}

// KycClient defines the interface for KYC provider operations
type KycClient interface {
	// CreateVerificationLink requests a hosted verification link for the applicant
	CreateVerificationLink(ctx context.Context, applicant submission.Applicant) (string, error)
}

// SumsubClient implements the KycClient interface
type SumsubClient struct {
	baseURL     string
	levelName   string
	redirectURL string
	ttlInSecs   int
	signer      *signing.Signer
	httpClient  *http.Client
}

// NewSumsubClient creates a new instance of SumsubClient
func NewSumsubClient(config KycConfig, signer *signing.Signer) *SumsubClient {
	timeout := time.Duration(config.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SumsubClient{
		baseURL:     strings.TrimRight(config.BaseUrl, "/"),
		levelName:   config.LevelName,
		redirectURL: config.RedirectUrl,
		ttlInSecs:   config.LinkTtlSecs,
		signer:      signer,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateVerificationLink calls the websdkLink endpoint once. The signed bytes
// and the transmitted bytes are the same slice.
func (c *SumsubClient) CreateVerificationLink(ctx context.Context, applicant submission.Applicant) (string, error) {
	requestBody := models.VerificationLinkRequest{
		LevelName: c.levelName,
		UserId:    applicant.UserID,
		ApplicantIdentifiers: models.ApplicantIdentifiers{
			Email: applicant.Email,
			Phone: applicant.Phone,
		},
		TtlInSecs:   c.ttlInSecs,
		RedirectUrl: c.redirectURL,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal websdk link request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+WebSdkLinkPath, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create websdk link request: %w", err)
	}
	c.signer.Sign(http.MethodPost, WebSdkLinkPath, jsonData).Apply(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ProviderRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to execute websdk link request: %w", err)
	}
	defer resp.Body.Close()
	metrics.ProviderRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxProviderErrorBody))
		return "", &ProviderError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var linkResponse models.VerificationLinkResponse
	if err := json.NewDecoder(resp.Body).Decode(&linkResponse); err != nil {
		return "", fmt.Errorf("failed to decode websdk link response: %w", err)
	}
	if linkResponse.Url == "" {
		return "", fmt.Errorf("websdk link response did not contain a url")
	}

	slog.Info("Verification link created", "user_id", applicant.UserID, "level", c.levelName)
	return linkResponse.Url, nil
}
