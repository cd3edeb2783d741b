package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"ctiflow/internal/correlate"
	"ctiflow/internal/extract"
	"ctiflow/internal/rules"
	"ctiflow/internal/scoring"
	"ctiflow/pkg/models"
)

type stubEngine struct {
	tactics []string
}

func (s *stubEngine) Apply(event *models.Event) []string {
	return s.tactics
}

func newTestRunner(engine rules.Engine) *Runner {
	return NewRunner(extract.New(extract.Config{}), engine, correlate.New(correlate.Config{}), scoring.New(scoring.Config{}), 2, nil, nil)
}

func readScoreRecords(t *testing.T, path string) []models.ScoreRecord {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var out []models.ScoreRecord
	s := bufio.NewScanner(f)
	for s.Scan() {
		var rec models.ScoreRecord
		if err := json.Unmarshal(s.Bytes(), &rec); err != nil {
			t.Fatalf("bad score line %q: %v", s.Text(), err)
		}
		out = append(out, rec)
	}
	return out
}

func TestRunPublishesAllArtifacts(t *testing.T) {
	outDir := t.TempDir()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	events := []*models.Event{
		{
			EventID:              "ev-a",
			Source:               "feed",
			PublishedAt:          base,
			NormalizedText:       "payload at hxxp://shared-c2[.]example.io/drop",
			ClassifierConfidence: 0.7,
		},
		{
			EventID:              "ev-b",
			Source:               "feed",
			PublishedAt:          base.Add(24 * time.Hour),
			NormalizedText:       "second sighting of shared-c2.example.io infrastructure",
			ClassifierConfidence: 0.8,
		},
		{
			EventID:              "ev-c",
			Source:               "feed",
			PublishedAt:          base.Add(48 * time.Hour),
			NormalizedText:       "unrelated phishing from lure.example.io",
			ClassifierConfidence: 0.3,
		},
	}

	runner := newTestRunner(nil)
	result, err := runner.Run(context.Background(), events, outDir)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if result.Events != 3 {
		t.Fatalf("expected 3 events in result, got %d", result.Events)
	}
	if result.Campaigns != 1 {
		t.Fatalf("expected 1 campaign from the shared host, got %d", result.Campaigns)
	}
	if result.RunID == "" {
		t.Fatalf("expected a run id")
	}

	for _, name := range []string{"indicators.jsonl", "campaigns.jsonl", "scores.jsonl"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("artifact %s missing: %v", name, err)
		}
	}

	scores := readScoreRecords(t, filepath.Join(outDir, "scores.jsonl"))
	if len(scores) != 3 {
		t.Fatalf("expected 3 score records, got %d", len(scores))
	}
	byEvent := make(map[string]models.ScoreRecord, len(scores))
	for _, rec := range scores {
		if rec.RunID != result.RunID {
			t.Fatalf("score record carries wrong run id: %+v", rec)
		}
		byEvent[rec.EventID] = rec
	}
	if byEvent["ev-a"].CampaignID == "" || byEvent["ev-b"].CampaignID == "" {
		t.Fatalf("correlated events should carry a campaign id: %+v", scores)
	}
	if byEvent["ev-a"].CampaignID != byEvent["ev-b"].CampaignID {
		t.Fatalf("correlated events should share a campaign id")
	}
	if byEvent["ev-c"].CampaignID != "" {
		t.Fatalf("uncorrelated event must not carry a campaign id: %+v", byEvent["ev-c"])
	}
	if byEvent["ev-b"].Confidence <= byEvent["ev-c"].Confidence {
		t.Fatalf("campaign member with higher classifier confidence should outscore the singleton")
	}
}

func TestRunEmptyBatchIsValidNoOp(t *testing.T) {
	outDir := t.TempDir()
	runner := newTestRunner(nil)

	result, err := runner.Run(context.Background(), nil, outDir)
	if err != nil {
		t.Fatalf("empty run failed: %v", err)
	}
	if result.Events != 0 || result.Indicators != 0 || result.Campaigns != 0 {
		t.Fatalf("expected all-zero result, got %+v", result)
	}
	for _, name := range []string{"indicators.jsonl", "campaigns.jsonl", "scores.jsonl"} {
		info, err := os.Stat(filepath.Join(outDir, name))
		if err != nil {
			t.Fatalf("artifact %s missing: %v", name, err)
		}
		if info.Size() != 0 {
			t.Fatalf("artifact %s should be empty, has %d bytes", name, info.Size())
		}
	}
}

func TestRunMergesEngineTacticsIntoEvents(t *testing.T) {
	outDir := t.TempDir()
	event := &models.Event{
		EventID:              "ev-a",
		Source:               "feed",
		NormalizedText:       "ransom note references evil.example.io",
		MitreTactics:         []string{"initial-access"},
		ClassifierConfidence: 0.5,
	}

	runner := newTestRunner(&stubEngine{tactics: []string{"impact", "initial-access"}})
	if _, err := runner.Run(context.Background(), []*models.Event{event}, outDir); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	want := []string{"impact", "initial-access"}
	if !reflect.DeepEqual(event.MitreTactics, want) {
		t.Fatalf("expected merged sorted tactics %v, got %v", want, event.MitreTactics)
	}
}

func TestMergeTacticsDeduplicatesAndSorts(t *testing.T) {
	got := mergeTactics([]string{"impact"}, []string{"initial-access", "impact"})
	if !reflect.DeepEqual(got, []string{"impact", "initial-access"}) {
		t.Fatalf("unexpected merge result: %v", got)
	}
	if got := mergeTactics([]string{"impact"}, nil); !reflect.DeepEqual(got, []string{"impact"}) {
		t.Fatalf("nil derived tactics should keep existing: %v", got)
	}
}
