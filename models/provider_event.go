package models

// ProviderEvent is a review-status callback sent by the KYC provider.
type ProviderEvent struct {
	Type           string        `json:"type"`
	ApplicantId    string        `json:"applicantId"`
	InspectionId   string        `json:"inspectionId,omitempty"`
	ExternalUserId string        `json:"externalUserId"`
	LevelName      string        `json:"levelName,omitempty"`
	ReviewStatus   string        `json:"reviewStatus,omitempty"`
	ReviewResult   *ReviewResult `json:"reviewResult,omitempty"`
	CreatedAtMs    string        `json:"createdAtMs,omitempty"`
}

type ReviewResult struct {
	ReviewAnswer string   `json:"reviewAnswer"`
	RejectLabels []string `json:"rejectLabels,omitempty"`
}
