package model

import (
	"time"
)

// Stage identifies a pipeline stage. Every FilterDecision is keyed by
// (raw_event_id, stage); the per-event stage order is fixed.
type Stage string

const (
	StageNormalize  Stage = "normalize"
	StageDedup      Stage = "dedup"
	StageNoiseGate  Stage = "noise_gate"
	StageExtraction Stage = "extraction"
	StageValidation Stage = "validation"
	StageScoring    Stage = "scoring"
)

// Decision is the outcome of a stage for a single event.
type Decision string

const (
	DecisionInclude Decision = "include"
	DecisionReject  Decision = "reject"
)

// Terminal reject reasons written to the ledger. Reasons are part of the
// audit contract: `why_rejected` is derived from the last decision's reason.
const (
	ReasonDuplicate                 = "duplicate"
	ReasonNearDuplicate             = "near_duplicate"
	ReasonModelReject               = "model_reject"
	ReasonConfidenceBelowThreshold  = "confidence_below_threshold"
	ReasonGatewayUnavailable        = "gateway_unavailable"
	ReasonExtractionSchemaExhausted = "extraction_schema_exhausted"
	ReasonMissingMandatoryField     = "missing_mandatory_field"
	ReasonHypeRatioExceeded         = "hype_ratio_exceeded"
	ReasonScored                    = "scored"
)

// Envelope is the canonical input shape produced by source connectors.
// Connectors with any other payload shape must adapt to this envelope
// before handing events to the pipeline.
type Envelope struct {
	Source      string    `json:"source"`
	ExternalID  string    `json:"external_id"`
	Author      string    `json:"author"`
	PublishedAt time.Time `json:"published_at"`
	RawText     string    `json:"raw_text"`
	RawJSON     string    `json:"raw_json,omitempty"`
	URL         string    `json:"url"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// RawEvent is the canonical, immutable record of one logical piece of
// announcement content. ContentHash is a digest of the normalized text;
// exactly one canonical RawEvent exists per distinct hash.
type RawEvent struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	ExternalID  string    `json:"external_id"`
	Author      string    `json:"author"`
	URL         string    `json:"url"`
	RawText     string    `json:"raw_text"`
	RawJSON     string    `json:"raw_json,omitempty"`
	ContentHash string    `json:"content_hash"`
	PublishedAt time.Time `json:"published_at"`
	IngestedAt  time.Time `json:"ingested_at"`

	// ImmediateToken is set when the raw text matches claim-live style
	// keywords; it is a delivery hint, never a filter input.
	ImmediateToken bool `json:"immediate_token,omitempty"`
}

// Fingerprint is the persisted similarity signature of a RawEvent, used
// only for near-duplicate comparison, never as identity.
type Fingerprint struct {
	RawEventID  string    `json:"raw_event_id"`
	SourceID    string    `json:"source_id"`
	Simhash     uint64    `json:"simhash"`
	Tokens      []string  `json:"tokens"`
	PublishedAt time.Time `json:"published_at"`
}

// FilterDecision is one append-only audit row: the outcome of one stage
// for one event. Rows are immutable once written.
type FilterDecision struct {
	RawEventID      string    `json:"raw_event_id"`
	Stage           Stage     `json:"stage"`
	Decision        Decision  `json:"decision"`
	Reason          string    `json:"reason"`
	ModelName       string    `json:"model_name,omitempty"`
	ModelConfidence float64   `json:"model_confidence,omitempty"`
	PromptVersion   string    `json:"prompt_version,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Terminal reports whether this decision ends the event's pipeline run.
// Rejects are always terminal; the scoring include is terminal too.
func (d FilterDecision) Terminal() bool {
	return d.Decision == DecisionReject || d.Stage == StageScoring
}
