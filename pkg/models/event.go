package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Event is a normalized threat-report event produced by the preprocessing
// stage. IncidentType, Sector and ClassifierConfidence come from the external
// classifier; the analytic core treats them as opaque labels.
type Event struct {
	EventID        string    `json:"event_id"`
	Source         string    `json:"source"`
	SourceURL      string    `json:"source_url,omitempty"`
	PublishedAt    time.Time `json:"published_at,omitempty"`
	IngestedAt     time.Time `json:"ingested_at,omitempty"`
	NormalizedText string    `json:"normalized_text"`
	IncidentType   string    `json:"incident_type"`
	Sector         string    `json:"sector"`
	MitreTactics   []string  `json:"mitre_tactics,omitempty"`

	// ClassifierConfidence is the upstream classifier output, 0-1. The
	// combined confidence computed by scoring lives on ScoreRecord.
	ClassifierConfidence float64 `json:"confidence"`
}

// ObservedAt returns the event timestamp used for temporal reasoning:
// published time when present, ingestion time otherwise. The second return
// reports whether the event carries a published timestamp at all.
func (e *Event) ObservedAt() (time.Time, bool) {
	if !e.PublishedAt.IsZero() {
		return e.PublishedAt, true
	}
	return e.IngestedAt, false
}

// ComputeEventID derives the stable event identity from the source URL and
// normalized text, so reprocessing the same report yields the same ID.
func ComputeEventID(sourceURL, normalizedText string) string {
	h := sha256.New()
	h.Write([]byte(sourceURL))
	h.Write([]byte{'\n'})
	h.Write([]byte(normalizedText))
	return hex.EncodeToString(h.Sum(nil))[:32]
}
