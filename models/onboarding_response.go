package models

type OnboardingResponse struct {
	Status          string `json:"status"`
	UserId          string `json:"userId"`
	VerificationUrl string `json:"verificationUrl,omitempty"`
	EmailSent       bool   `json:"emailSent"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
