package models

import "time"

// IndicatorType classifies an extracted indicator of compromise.
type IndicatorType string

const (
	IndicatorIP     IndicatorType = "ip"
	IndicatorDomain IndicatorType = "domain"
	IndicatorURL    IndicatorType = "url"
	IndicatorHash   IndicatorType = "hash"
	IndicatorEmail  IndicatorType = "email"
)

// Indicator is a single IOC occurrence within one event. Identity is the
// (source_event_id, normalized_value) pair; the same value seen in another
// event is a separate record and the join key for correlation.
type Indicator struct {
	IOCType         IndicatorType `json:"ioc_type"`
	RawValue        string        `json:"raw_value"`
	NormalizedValue string        `json:"normalized_value"`
	HashAlgo        string        `json:"hash_algo,omitempty"`
	SourceEventID   string        `json:"source_event_id"`
	FirstSeen       time.Time     `json:"first_seen,omitempty"`

	// Confidence is the extraction-pattern confidence, not the event
	// confidence. Allowlisted benign infrastructure is kept at 0 for audit.
	Confidence float64 `json:"confidence"`
}

// IndicatorSet holds the deduplicated indicators extracted from one event.
type IndicatorSet struct {
	EventID    string      `json:"event_id"`
	Indicators []Indicator `json:"indicators"`
}

// ActiveValues returns the normalized values with confidence > 0, the only
// ones that participate in correlation and density scoring.
func (s *IndicatorSet) ActiveValues() []string {
	out := make([]string, 0, len(s.Indicators))
	for _, ind := range s.Indicators {
		if ind.Confidence > 0 {
			out = append(out, ind.NormalizedValue)
		}
	}
	return out
}

// ActiveCount counts indicators with confidence > 0.
func (s *IndicatorSet) ActiveCount() int {
	n := 0
	for _, ind := range s.Indicators {
		if ind.Confidence > 0 {
			n++
		}
	}
	return n
}
