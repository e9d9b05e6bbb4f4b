package models

type ApplicantIdentifiers struct {
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// VerificationLinkRequest is the body of the provider's websdkLink call.
type VerificationLinkRequest struct {
	LevelName            string               `json:"levelName"`
	UserId               string               `json:"userId"`
	ApplicantIdentifiers ApplicantIdentifiers `json:"applicantIdentifiers"`
	TtlInSecs            int                  `json:"ttlInSecs"`
	RedirectUrl          string               `json:"redirectUrl,omitempty"`
}

type VerificationLinkResponse struct {
	Url string `json:"url"`
}
