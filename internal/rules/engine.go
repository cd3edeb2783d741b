package rules

import "ctiflow/pkg/models"

// Engine derives MITRE ATT&CK tactic tags for an event. The pipeline merges
// the returned tactics into the event's classifier-provided set.
type Engine interface {
	Apply(event *models.Event) []string
}

// NoopEngine returns no tags.
type NoopEngine struct{}

// Apply returns an empty tactic list.
func (n *NoopEngine) Apply(event *models.Event) []string {
	return nil
}
