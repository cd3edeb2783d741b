package scoring

import (
	"ctiflow/internal/logger"
	"ctiflow/pkg/models"
)

// Weights for the combined confidence terms. CampaignBonus is a fixed
// additive boost for events corroborated by a multi-member campaign.
type Weights struct {
	Classifier       float64
	IndicatorDensity float64
	CampaignBonus    float64
}

// Thresholds are the severity cutoffs on combined confidence. They must be
// monotonic (High >= Medium >= Low); config validation enforces that before
// a run starts.
type Thresholds struct {
	High   float64
	Medium float64
	Low    float64
}

// Config controls scoring.
type Config struct {
	Weights    Weights
	Thresholds Thresholds

	// DensityCap saturates the indicator-density term: indicator counts at
	// or above the cap all contribute the full term.
	DensityCap int
}

// Scorer computes per-event severity and confidence. Score is a pure
// function of its inputs apart from the clamp warning log.
type Scorer struct {
	cfg Config
}

// New creates a scorer, applying defaults for unset fields.
func New(cfg Config) *Scorer {
	if cfg.Weights.Classifier <= 0 && cfg.Weights.IndicatorDensity <= 0 && cfg.Weights.CampaignBonus <= 0 {
		cfg.Weights = Weights{Classifier: 0.6, IndicatorDensity: 0.3, CampaignBonus: 0.1}
	}
	if cfg.Thresholds.High <= 0 && cfg.Thresholds.Medium <= 0 && cfg.Thresholds.Low <= 0 {
		cfg.Thresholds = Thresholds{High: 0.75, Medium: 0.5, Low: 0.25}
	}
	if cfg.DensityCap <= 0 {
		cfg.DensityCap = 5
	}
	return &Scorer{cfg: cfg}
}

// Score combines classifier confidence, indicator density and campaign
// membership into one confidence with a term-by-term rationale. campaignID
// is empty for uncorrelated events.
func (s *Scorer) Score(event *models.Event, set models.IndicatorSet, campaignID string) models.ScoreRecord {
	classifierIn := event.ClassifierConfidence
	clamped := false
	if classifierIn < 0 || classifierIn > 1 {
		logger.Warnf("Classifier confidence out of range, clamping: event=%s value=%f", event.EventID, classifierIn)
		classifierIn = clamp01(classifierIn)
		clamped = true
	}

	count := set.ActiveCount()
	densityIn := float64(count) / float64(s.cfg.DensityCap)
	if densityIn > 1 {
		densityIn = 1
	}

	membershipIn := 0.0
	if campaignID != "" {
		membershipIn = 1
	}

	rationale := []models.RationaleTerm{
		{
			Factor:       "classifier_confidence",
			Weight:       s.cfg.Weights.Classifier,
			Input:        classifierIn,
			Contribution: s.cfg.Weights.Classifier * classifierIn,
			Clamped:      clamped,
		},
		{
			Factor:       "indicator_density",
			Weight:       s.cfg.Weights.IndicatorDensity,
			Input:        densityIn,
			Contribution: s.cfg.Weights.IndicatorDensity * densityIn,
		},
		{
			Factor:       "campaign_membership",
			Weight:       s.cfg.Weights.CampaignBonus,
			Input:        membershipIn,
			Contribution: s.cfg.Weights.CampaignBonus * membershipIn,
		},
	}

	confidence := 0.0
	for _, term := range rationale {
		confidence += term.Contribution
	}
	confidence = clamp01(confidence)

	return models.ScoreRecord{
		EventID:       event.EventID,
		CampaignID:    campaignID,
		SeverityLabel: s.severityLabel(confidence),
		Confidence:    confidence,
		Rationale:     rationale,
	}
}

func (s *Scorer) severityLabel(confidence float64) string {
	switch {
	case confidence >= s.cfg.Thresholds.High:
		return models.SeverityHigh
	case confidence >= s.cfg.Thresholds.Medium:
		return models.SeverityMedium
	case confidence >= s.cfg.Thresholds.Low:
		return models.SeverityLow
	default:
		return models.SeverityInformational
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
