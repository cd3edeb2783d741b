package models

import (
	"strings"
	"testing"
	"time"
)

func TestComputeEventIDIsStableAndDistinct(t *testing.T) {
	a := ComputeEventID("https://feed.test/r/1", "text one")
	b := ComputeEventID("https://feed.test/r/1", "text one")
	c := ComputeEventID("https://feed.test/r/2", "text one")

	if a != b {
		t.Fatalf("same inputs must yield the same id: %s vs %s", a, b)
	}
	if a == c {
		t.Fatalf("different sources must yield different ids")
	}
	if len(a) != 32 {
		t.Fatalf("unexpected id length: %d", len(a))
	}
}

func TestComputeCampaignIDOrderIndependent(t *testing.T) {
	a := ComputeCampaignID([]string{"ev-1", "ev-2", "ev-3"})
	b := ComputeCampaignID([]string{"ev-3", "ev-1", "ev-2"})

	if a != b {
		t.Fatalf("campaign id must be order independent: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "CAMP-") || len(a) != len("CAMP-")+16 {
		t.Fatalf("unexpected campaign id format: %s", a)
	}

	members := []string{"ev-b", "ev-a"}
	ComputeCampaignID(members)
	if members[0] != "ev-b" {
		t.Fatalf("input slice must not be modified: %v", members)
	}
}

func TestObservedAtPrefersPublishedTime(t *testing.T) {
	published := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ingested := published.Add(2 * time.Hour)

	e := &Event{PublishedAt: published, IngestedAt: ingested}
	got, ok := e.ObservedAt()
	if !ok || !got.Equal(published) {
		t.Fatalf("expected published time, got %v (published=%v)", got, ok)
	}

	e = &Event{IngestedAt: ingested}
	got, ok = e.ObservedAt()
	if ok || !got.Equal(ingested) {
		t.Fatalf("expected ingested fallback, got %v (published=%v)", got, ok)
	}
}

func TestIndicatorSetActiveValues(t *testing.T) {
	set := IndicatorSet{
		EventID: "ev-1",
		Indicators: []Indicator{
			{NormalizedValue: "evil.test", Confidence: 0.6},
			{NormalizedValue: "cdn.cloudflare.com", Confidence: 0},
		},
	}
	values := set.ActiveValues()
	if len(values) != 1 || values[0] != "evil.test" {
		t.Fatalf("unexpected active values: %v", values)
	}
	if set.ActiveCount() != 1 {
		t.Fatalf("unexpected active count: %d", set.ActiveCount())
	}
}
