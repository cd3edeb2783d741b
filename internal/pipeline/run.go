package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ctiflow/internal/correlate"
	"ctiflow/internal/extract"
	"ctiflow/internal/logger"
	"ctiflow/internal/metrics"
	"ctiflow/internal/output/artifact"
	"ctiflow/internal/rules"
	"ctiflow/internal/scoring"
	"ctiflow/pkg/models"
)

// IndicatorSink receives extracted indicators after the run artifacts are
// published. Sink failures are logged and do not fail the run.
type IndicatorSink interface {
	WriteIndicators(indicators []models.Indicator) error
	Close() error
}

// StateStore persists run results for cross-run lookups.
type StateStore interface {
	UpsertIndicators(ctx context.Context, sets []models.IndicatorSet) (int, error)
	WriteCampaigns(ctx context.Context, campaigns []models.Campaign) error
	WriteScores(ctx context.Context, scores []models.ScoreRecord) error
	Close() error
}

// Runner executes one batch run: extraction, correlation and scoring over a
// set of normalized events, ending in atomically published JSONL artifacts.
type Runner struct {
	extractor  *extract.Extractor
	engine     rules.Engine
	correlator *correlate.Correlator
	scorer     *scoring.Scorer
	workers    int

	sink  IndicatorSink
	store StateStore
}

// Result summarizes a completed run.
type Result struct {
	RunID            string
	Events           int
	Indicators       int
	ActiveEvents     int
	Campaigns        int
	ScoredBySeverity map[string]int
}

// NewRunner assembles a batch runner. sink and store may be nil.
func NewRunner(extractor *extract.Extractor, engine rules.Engine, correlator *correlate.Correlator, scorer *scoring.Scorer, workers int, sink IndicatorSink, store StateStore) *Runner {
	if workers <= 0 {
		workers = 8
	}
	return &Runner{
		extractor:  extractor,
		engine:     engine,
		correlator: correlator,
		scorer:     scorer,
		workers:    workers,
		sink:       sink,
		store:      store,
	}
}

// Run processes a batch of events and writes indicators.jsonl, campaigns.jsonl
// and scores.jsonl under outDir. An empty batch publishes empty artifacts and
// succeeds. Output order is deterministic for a given input set.
func (r *Runner) Run(ctx context.Context, events []*models.Event, outDir string) (*Result, error) {
	started := time.Now()
	runID := uuid.NewString()
	logger.Infof("Run started: run_id=%s events=%d workers=%d", runID, len(events), r.workers)

	inputs := r.extractAll(events)

	campaigns := r.correlator.Correlate(inputs)
	metrics.CampaignsFormed.Set(float64(len(campaigns)))

	campaignByEvent := make(map[string]string, len(events))
	for _, c := range campaigns {
		for _, eventID := range c.MemberEventIDs {
			campaignByEvent[eventID] = c.CampaignID
		}
	}

	scores := make([]models.ScoreRecord, 0, len(inputs))
	bySeverity := make(map[string]int, 4)
	for _, in := range inputs {
		rec := r.scorer.Score(in.Event, in.Set, campaignByEvent[in.Event.EventID])
		rec.RunID = runID
		scores = append(scores, rec)
		bySeverity[rec.SeverityLabel]++
		metrics.EventsScored.WithLabelValues(rec.SeverityLabel).Inc()
	}

	indicators := flattenIndicators(inputs)
	if err := artifact.WriteJSONL(filepath.Join(outDir, "indicators.jsonl"), indicators); err != nil {
		return nil, fmt.Errorf("publish indicators: %w", err)
	}
	if err := artifact.WriteJSONL(filepath.Join(outDir, "campaigns.jsonl"), campaigns); err != nil {
		return nil, fmt.Errorf("publish campaigns: %w", err)
	}
	if err := artifact.WriteJSONL(filepath.Join(outDir, "scores.jsonl"), scores); err != nil {
		return nil, fmt.Errorf("publish scores: %w", err)
	}

	r.drainSinks(ctx, inputs, indicators, campaigns, scores)

	activeEvents := 0
	for _, in := range inputs {
		if in.Set.ActiveCount() > 0 {
			activeEvents++
		}
	}

	metrics.RunDuration.Observe(time.Since(started).Seconds())
	logger.Infof("Run finished: run_id=%s events=%d indicators=%d campaigns=%d duration=%s",
		runID, len(events), len(indicators), len(campaigns), time.Since(started).Round(time.Millisecond))

	return &Result{
		RunID:            runID,
		Events:           len(events),
		Indicators:       len(indicators),
		ActiveEvents:     activeEvents,
		Campaigns:        len(campaigns),
		ScoredBySeverity: bySeverity,
	}, nil
}

// extractAll runs tactic tagging and extraction across a worker pool. Results
// keep the input order so downstream output is stable.
func (r *Runner) extractAll(events []*models.Event) []correlate.EventIndicators {
	inputs := make([]correlate.EventIndicators, len(events))
	idxCh := make(chan int, len(events))
	for i := range events {
		idxCh <- i
	}
	close(idxCh)

	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxCh {
				event := events[i]
				if r.engine != nil {
					event.MitreTactics = mergeTactics(event.MitreTactics, r.engine.Apply(event))
				}
				set := r.extractor.Extract(event)
				inputs[i] = correlate.EventIndicators{Event: event, Set: set}

				metrics.EventsProcessed.Inc()
				for _, ind := range set.Indicators {
					metrics.IndicatorsExtracted.WithLabelValues(string(ind.IOCType)).Inc()
					if ind.Confidence == 0 {
						metrics.IndicatorsSuppressed.Inc()
					}
				}
			}
		}()
	}
	wg.Wait()
	return inputs
}

func (r *Runner) drainSinks(ctx context.Context, inputs []correlate.EventIndicators, indicators []models.Indicator, campaigns []models.Campaign, scores []models.ScoreRecord) {
	if r.sink != nil {
		if err := r.sink.WriteIndicators(indicators); err != nil {
			logger.Errorf("Indicator sink write failed: %v", err)
		}
	}
	if r.store == nil {
		return
	}

	sets := make([]models.IndicatorSet, 0, len(inputs))
	for _, in := range inputs {
		sets = append(sets, in.Set)
	}
	if inserted, err := r.store.UpsertIndicators(ctx, sets); err != nil {
		logger.Errorf("Indicator store upsert failed: %v", err)
	} else {
		logger.Debugf("Indicator store upsert: inserted=%d", inserted)
	}
	if err := r.store.WriteCampaigns(ctx, campaigns); err != nil {
		logger.Errorf("Campaign store write failed: %v", err)
	}
	if err := r.store.WriteScores(ctx, scores); err != nil {
		logger.Errorf("Score store write failed: %v", err)
	}
}

// Close releases sink and store resources.
func (r *Runner) Close() error {
	if r.sink != nil {
		if err := r.sink.Close(); err != nil {
			logger.Errorf("Failed to close indicator sink: %v", err)
		}
	}
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}

func flattenIndicators(inputs []correlate.EventIndicators) []models.Indicator {
	out := make([]models.Indicator, 0, len(inputs)*4)
	for _, in := range inputs {
		out = append(out, in.Set.Indicators...)
	}
	return out
}

func mergeTactics(existing, derived []string) []string {
	if len(derived) == 0 {
		return existing
	}
	seen := make(map[string]struct{}, len(existing)+len(derived))
	for _, t := range existing {
		seen[t] = struct{}{}
	}
	for _, t := range derived {
		seen[t] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
