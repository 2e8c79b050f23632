package model

import (
	"time"
)

// ValidationStatus tracks how an ExtractedAction reached a usable shape.
type ValidationStatus string

const (
	ValidationValid     ValidationStatus = "valid"
	ValidationInvalid   ValidationStatus = "invalid"
	ValidationCorrected ValidationStatus = "corrected"
)

// CostConfidence is the extractor's per-field confidence for the cost
// estimate. It feeds only the score breakdown, never gating logic.
type CostConfidence string

const (
	CostConfidenceHigh   CostConfidence = "high"
	CostConfidenceMedium CostConfidence = "medium"
	CostConfidenceLow    CostConfidence = "low"
)

// NoiseDecision is the Stage A (noise gate) response contract.
type NoiseDecision struct {
	Decision   Decision `json:"decision"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason,omitempty"`
	NoiseFlags []string `json:"noise_flags,omitempty"`
}

// Extraction is the fixed Stage B response schema. Any response that does
// not parse into this shape is a schema-validation failure, not a crash.
type Extraction struct {
	Decision       string          `json:"decision"`
	ProjectName    *string         `json:"project_name"`
	RequiredAction *string         `json:"required_action"`
	CostOfEntry    CostOfEntry     `json:"cost_of_entry"`
	VCBacking      []string        `json:"vc_backing"`
	Deadline       *string         `json:"deadline"`
	Evidence       []string        `json:"evidence"`
	Reason         string          `json:"reason"`
	NoiseFlags     []string        `json:"noise_flags"`
}

// CostOfEntry is the extractor's cost estimate with per-field confidence.
type CostOfEntry struct {
	AmountUSD  *float64       `json:"amount_usd"`
	Confidence CostConfidence `json:"confidence"`
}

// ExtractedAction is the structured output of Stage B after schema
// validation. It is mutated only by the reprompt controller during its
// bounded retries and frozen once the status is valid or corrected.
type ExtractedAction struct {
	RawEventID        string           `json:"raw_event_id"`
	ProjectName       string           `json:"project_name"`
	RequiredAction    string           `json:"required_action"`
	CostOfEntryUSD    float64          `json:"cost_of_entry_usd"`
	CostConfidence    CostConfidence   `json:"cost_confidence"`
	VCBacking         []string         `json:"vc_backing"`
	Evidence          []string         `json:"evidence"`
	DeadlineAt        *time.Time       `json:"deadline_at,omitempty"`
	StructuredPayload string           `json:"structured_payload"`
	ValidationStatus  ValidationStatus `json:"validation_status"`
	Attempts          int              `json:"attempts"`
}
