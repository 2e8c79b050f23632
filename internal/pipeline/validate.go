package pipeline

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/config"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/dedup"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
)

// Rule validator check names, in execution order.
const (
	checkMandatoryFields = "mandatory_fields"
	checkHypeRatio       = "hype_ratio"
	checkBackingEvidence = "backing_evidence"
)

// ValidationOutcome is the deterministic post-check result. ChecksRun
// records which checks executed before a short-circuit, for the ledger.
type ValidationOutcome struct {
	Passed        bool
	Reason        string
	ChecksRun     []string
	Action        model.ExtractedAction
	DroppedClaims []string
	HypeRatio     float64
}

// LedgerReason formats the outcome for the decision ledger row.
func (o ValidationOutcome) LedgerReason() string {
	reason := o.Reason
	if o.Passed {
		reason = "passed"
	}
	return fmt.Sprintf("%s (checks: %s)", reason, strings.Join(o.ChecksRun, ","))
}

// RuleValidator applies the deterministic, non-AI post-checks to an
// extracted action. No model is consulted; same inputs, same verdict.
type RuleValidator struct {
	lexicon   []string
	threshold float64
}

// NewRuleValidator builds a validator from config. The lexicon is
// normalized once so matching is case-insensitive.
func NewRuleValidator(cfg config.ValidatorConfig) *RuleValidator {
	lexicon := make([]string, 0, len(cfg.BannedKeywords))
	for _, kw := range cfg.BannedKeywords {
		if norm := dedup.NormalizeText(kw); norm != "" {
			lexicon = append(lexicon, norm)
		}
	}
	return &RuleValidator{lexicon: lexicon, threshold: cfg.HypeRatioThreshold}
}

// Validate runs the ordered checks against the action and its source raw
// text, short-circuiting on first failure. Unevidenced backing claims are
// dropped, not rejected.
func (v *RuleValidator) Validate(action model.ExtractedAction, rawText string) ValidationOutcome {
	outcome := ValidationOutcome{Action: action}

	// 1. Mandatory fields.
	outcome.ChecksRun = append(outcome.ChecksRun, checkMandatoryFields)
	if strings.TrimSpace(action.ProjectName) == "" || strings.TrimSpace(action.RequiredAction) == "" {
		outcome.Reason = model.ReasonMissingMandatoryField
		return outcome
	}

	// 2. Banned-keyword ratio over the source text. Rejection requires
	// strictly exceeding the threshold: a ratio exactly at it passes.
	outcome.ChecksRun = append(outcome.ChecksRun, checkHypeRatio)
	outcome.HypeRatio = v.hypeRatio(rawText)
	if outcome.HypeRatio > v.threshold {
		outcome.Reason = model.ReasonHypeRatioExceeded
		return outcome
	}

	// 3. Backing evidence: keep only claims corroborated by Stage B
	// evidence. Dropping degrades confidence instead of rejecting.
	outcome.ChecksRun = append(outcome.ChecksRun, checkBackingEvidence)
	kept, dropped := filterEvidencedBacking(action.VCBacking, action.Evidence)
	outcome.Action.VCBacking = kept
	outcome.DroppedClaims = dropped
	if len(dropped) > 0 {
		zap.L().Debug("validator: dropped unevidenced backing claims",
			zap.String("event_id", action.RawEventID),
			zap.Strings("dropped", dropped),
		)
	}

	outcome.Passed = true
	return outcome
}

// hypeRatio is blocklist occurrences divided by total token count.
func (v *RuleValidator) hypeRatio(rawText string) float64 {
	tokens := dedup.Tokenize(rawText)
	if len(tokens) == 0 {
		return 0
	}

	normalized := dedup.NormalizeText(rawText)
	occurrences := 0
	for _, term := range v.lexicon {
		occurrences += strings.Count(normalized, term)
	}
	return float64(occurrences) / float64(len(tokens))
}

func filterEvidencedBacking(backing, evidence []string) (kept, dropped []string) {
	for _, investor := range backing {
		needle := strings.ToLower(strings.TrimSpace(investor))
		if needle == "" {
			continue
		}
		supported := false
		for _, ev := range evidence {
			if strings.Contains(strings.ToLower(ev), needle) {
				supported = true
				break
			}
		}
		if supported {
			kept = append(kept, investor)
		} else {
			dropped = append(dropped, investor)
		}
	}
	return kept, dropped
}
