package model

import (
	"time"
)

// ScoreComponent records one sub-score's raw value, its configured weight,
// and its weighted contribution to the final score.
type ScoreComponent struct {
	Raw      float64 `json:"raw"`
	Weight   float64 `json:"weight"`
	Weighted float64 `json:"weighted"`
}

// ScoreBreakdown maps sub-score name to its contribution. It is the
// `why_included` explainability payload on every Opportunity.
type ScoreBreakdown map[string]ScoreComponent

// PriorityLabel buckets a score for delivery formatting.
type PriorityLabel string

const (
	PriorityHigh   PriorityLabel = "high"
	PriorityMedium PriorityLabel = "medium"
	PriorityLow    PriorityLabel = "low"
)

// Opportunity is a scored, validated, actionable record ready for delivery.
// It is derived data: recomputing from the same ExtractedAction and
// reference weights yields the same score bit-for-bit.
type Opportunity struct {
	ID                 string         `json:"id"`
	RawEventID         string         `json:"raw_event_id"`
	ProjectName        string         `json:"project_name"`
	RequiredAction     string         `json:"required_action"`
	CostOfEntryUSD     float64        `json:"cost_of_entry_usd"`
	VCBacking          []string       `json:"vc_backing"`
	DeadlineAt         *time.Time     `json:"deadline_at,omitempty"`
	Score              float64        `json:"score"`
	ScoreBreakdown     ScoreBreakdown `json:"score_breakdown"`
	LogicToProfitRatio float64        `json:"logic_to_profit_ratio"`
	Confidence         float64        `json:"confidence"`
	Priority           PriorityLabel  `json:"priority"`
	ImmediateToken     bool           `json:"immediate_token,omitempty"`
	SourceURL          string         `json:"source_url"`
	CreatedAt          time.Time      `json:"created_at"`
}
