package models

// Severity labels, ordered from most to least severe.
const (
	SeverityHigh          = "high"
	SeverityMedium        = "medium"
	SeverityLow           = "low"
	SeverityInformational = "informational"
)

// RationaleTerm is one weighted contribution to a combined confidence.
// Clamped marks inputs that arrived outside [0,1] and were coerced.
type RationaleTerm struct {
	Factor       string  `json:"factor"`
	Weight       float64 `json:"weight"`
	Input        float64 `json:"input"`
	Contribution float64 `json:"contribution"`
	Clamped      bool    `json:"clamped,omitempty"`
}

// ScoreRecord is the per-event scoring output. It is created or overwritten
// whole once per run, never partially updated.
type ScoreRecord struct {
	EventID       string          `json:"event_id"`
	RunID         string          `json:"run_id,omitempty"`
	CampaignID    string          `json:"campaign_id,omitempty"`
	SeverityLabel string          `json:"severity_label"`
	Confidence    float64         `json:"confidence"`
	Rationale     []RationaleTerm `json:"rationale"`
}
