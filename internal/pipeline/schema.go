package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
)

// SchemaError carries the concrete violations from a failed Stage B
// payload. The reprompt controller embeds them in the next attempt.
type SchemaError struct {
	Violations []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("extraction schema: %d violations", len(e.Violations))
}

// deadlineFormats are accepted for the deadline field, most specific first.
var deadlineFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseExtraction validates raw model output against the fixed Stage B
// schema. Well-formed JSON with the wrong shape yields a *SchemaError,
// never a crash.
func ParseExtraction(raw string) (*model.Extraction, error) {
	cleaned := cleanJSON(raw)

	var ext model.Extraction
	if err := json.Unmarshal([]byte(cleaned), &ext); err != nil {
		return nil, &SchemaError{Violations: []string{"response is not a valid JSON object: " + err.Error()}}
	}

	var violations []string
	if ext.Decision != "include" && ext.Decision != "reject" {
		violations = append(violations, fmt.Sprintf(`"decision" must be "include" or "reject", got %q`, ext.Decision))
	}
	switch ext.CostOfEntry.Confidence {
	case model.CostConfidenceHigh, model.CostConfidenceMedium, model.CostConfidenceLow:
	case "":
		violations = append(violations, `"cost_of_entry.confidence" is required ("high", "medium" or "low")`)
	default:
		violations = append(violations, fmt.Sprintf(`"cost_of_entry.confidence" must be "high", "medium" or "low", got %q`, ext.CostOfEntry.Confidence))
	}
	if ext.CostOfEntry.AmountUSD != nil && *ext.CostOfEntry.AmountUSD < 0 {
		violations = append(violations, `"cost_of_entry.amount_usd" must be >= 0 or null`)
	}
	if ext.Deadline != nil {
		if _, err := parseDeadline(*ext.Deadline); err != nil {
			violations = append(violations, fmt.Sprintf(`"deadline" must be ISO8601 or null, got %q`, *ext.Deadline))
		}
	}
	if ext.Decision == "include" {
		if ext.ProjectName == nil || *ext.ProjectName == "" {
			violations = append(violations, `"project_name" must be non-null for an include decision`)
		}
		if ext.RequiredAction == nil || *ext.RequiredAction == "" {
			violations = append(violations, `"required_action" must be non-null for an include decision`)
		}
	}

	if len(violations) > 0 {
		return nil, &SchemaError{Violations: violations}
	}
	return &ext, nil
}

func parseDeadline(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range deadlineFormats {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// BuildAction converts a schema-valid extraction into an ExtractedAction
// for the given event.
func BuildAction(rawEventID string, ext *model.Extraction, rawPayload string, status model.ValidationStatus, attempts int) model.ExtractedAction {
	action := model.ExtractedAction{
		RawEventID:        rawEventID,
		CostConfidence:    ext.CostOfEntry.Confidence,
		VCBacking:         ext.VCBacking,
		Evidence:          ext.Evidence,
		StructuredPayload: rawPayload,
		ValidationStatus:  status,
		Attempts:          attempts,
	}
	if ext.ProjectName != nil {
		action.ProjectName = *ext.ProjectName
	}
	if ext.RequiredAction != nil {
		action.RequiredAction = *ext.RequiredAction
	}
	if ext.CostOfEntry.AmountUSD != nil {
		action.CostOfEntryUSD = *ext.CostOfEntry.AmountUSD
	}
	if ext.Deadline != nil {
		if t, err := parseDeadline(*ext.Deadline); err == nil {
			action.DeadlineAt = &t
		}
	}
	return action
}
