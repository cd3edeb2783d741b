package correlate

import (
	"reflect"
	"testing"
	"time"

	"ctiflow/pkg/models"
)

func eventWith(id string, published time.Time, values ...string) EventIndicators {
	inds := make([]models.Indicator, 0, len(values))
	for _, v := range values {
		inds = append(inds, models.Indicator{
			IOCType:         models.IndicatorDomain,
			RawValue:        v,
			NormalizedValue: v,
			SourceEventID:   id,
			Confidence:      0.6,
		})
	}
	return EventIndicators{
		Event: &models.Event{EventID: id, PublishedAt: published},
		Set:   models.IndicatorSet{EventID: id, Indicators: inds},
	}
}

func TestCorrelateFormsCampaignFromSharedIndicator(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := New(Config{})

	campaigns := c.Correlate([]EventIndicators{
		eventWith("ev-a", base, "evil.test", "only-a.test"),
		eventWith("ev-b", base.Add(24*time.Hour), "evil.test", "only-b.test"),
		eventWith("ev-c", base.Add(48*time.Hour), "unrelated.test"),
	})

	if len(campaigns) != 1 {
		t.Fatalf("expected 1 campaign, got %d: %+v", len(campaigns), campaigns)
	}
	got := campaigns[0]
	if !reflect.DeepEqual(got.MemberEventIDs, []string{"ev-a", "ev-b"}) {
		t.Fatalf("unexpected members: %+v", got.MemberEventIDs)
	}
	if !reflect.DeepEqual(got.SharedIndicators, []string{"evil.test"}) {
		t.Fatalf("unexpected shared indicators: %+v", got.SharedIndicators)
	}
	if !got.TimeSpan.Start.Equal(base) || !got.TimeSpan.End.Equal(base.Add(24*time.Hour)) {
		t.Fatalf("unexpected time span: %+v", got.TimeSpan)
	}
	if got.CampaignID != models.ComputeCampaignID([]string{"ev-a", "ev-b"}) {
		t.Fatalf("campaign id not derived from members: %s", got.CampaignID)
	}
}

func TestCorrelateIsInvariantToInputPermutation(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := eventWith("ev-a", base, "evil.test")
	b := eventWith("ev-b", base.Add(time.Hour), "evil.test", "second.test")
	d := eventWith("ev-d", base.Add(2*time.Hour), "second.test")

	c := New(Config{})
	first := c.Correlate([]EventIndicators{a, b, d})
	second := c.Correlate([]EventIndicators{d, a, b})

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected single transitive campaign, got %d and %d", len(first), len(second))
	}
	if first[0].CampaignID != second[0].CampaignID {
		t.Fatalf("campaign id changed under permutation: %s vs %s", first[0].CampaignID, second[0].CampaignID)
	}
	if !reflect.DeepEqual(first[0].MemberEventIDs, second[0].MemberEventIDs) {
		t.Fatalf("members changed under permutation: %+v vs %+v", first[0].MemberEventIDs, second[0].MemberEventIDs)
	}
}

func TestCorrelateSharedDomainWithinAndOutsideWindow(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	events := []EventIndicators{
		eventWith("ev-a", base, "evil-example.test"),
		eventWith("ev-b", base.Add(3*24*time.Hour), "evil-example.test"),
	}

	got := New(Config{}).Correlate(events)
	if len(got) != 1 || len(got[0].MemberEventIDs) != 2 {
		t.Fatalf("3 days apart inside a 14-day window should correlate, got %+v", got)
	}
	if got := New(Config{Window: 24 * time.Hour}).Correlate(events); len(got) != 0 {
		t.Fatalf("3 days apart with a 1-day window must stay uncorrelated, got %+v", got)
	}
}

func TestCorrelateBridgingEventMergesCampaigns(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	pairOne := []EventIndicators{
		eventWith("ev-a", base, "one.test"),
		eventWith("ev-b", base.Add(time.Hour), "one.test"),
	}
	pairTwo := []EventIndicators{
		eventWith("ev-c", base.Add(2*time.Hour), "two.test"),
		eventWith("ev-d", base.Add(3*time.Hour), "two.test"),
	}

	c := New(Config{})
	separate := c.Correlate(append(append([]EventIndicators(nil), pairOne...), pairTwo...))
	if len(separate) != 2 {
		t.Fatalf("expected 2 separate campaigns, got %+v", separate)
	}

	bridge := eventWith("ev-e", base.Add(90*time.Minute), "one.test", "two.test")
	merged := c.Correlate(append(append(append([]EventIndicators(nil), pairOne...), pairTwo...), bridge))
	if len(merged) != 1 {
		t.Fatalf("bridging event should merge both campaigns into one, got %+v", merged)
	}
	if !reflect.DeepEqual(merged[0].MemberEventIDs, []string{"ev-a", "ev-b", "ev-c", "ev-d", "ev-e"}) {
		t.Fatalf("merged campaign should contain the union of members, got %+v", merged[0].MemberEventIDs)
	}
}

func TestCorrelateWindowSeparatesDistantEvents(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	events := []EventIndicators{
		eventWith("ev-a", base, "evil.test"),
		eventWith("ev-b", base.Add(20*24*time.Hour), "evil.test"),
	}

	if got := New(Config{}).Correlate(events); len(got) != 0 {
		t.Fatalf("events 20 days apart should not correlate under the default window, got %+v", got)
	}
	if got := New(Config{Window: 30 * 24 * time.Hour}).Correlate(events); len(got) != 1 {
		t.Fatalf("expected campaign under a 30-day window, got %+v", got)
	}
}

func TestCorrelateMinSharedIndicatorsThreshold(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	events := []EventIndicators{
		eventWith("ev-a", base, "evil.test", "c2.evil.test"),
		eventWith("ev-b", base.Add(time.Hour), "evil.test"),
	}

	if got := New(Config{MinSharedIndicators: 2}).Correlate(events); len(got) != 0 {
		t.Fatalf("single shared value should not meet a threshold of 2, got %+v", got)
	}

	events[1] = eventWith("ev-b", base.Add(time.Hour), "evil.test", "c2.evil.test")
	if got := New(Config{MinSharedIndicators: 2}).Correlate(events); len(got) != 1 {
		t.Fatalf("two shared values should meet a threshold of 2, got %+v", got)
	}
}

func TestCorrelateIgnoresZeroConfidenceValues(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := eventWith("ev-a", base, "evil.test")
	b := eventWith("ev-b", base.Add(time.Hour))
	b.Set.Indicators = append(b.Set.Indicators, models.Indicator{
		IOCType:         models.IndicatorDomain,
		NormalizedValue: "evil.test",
		SourceEventID:   "ev-b",
		Confidence:      0,
	})

	if got := New(Config{}).Correlate([]EventIndicators{a, b}); len(got) != 0 {
		t.Fatalf("zero-confidence values must not join events, got %+v", got)
	}
}

func TestCorrelateMissingTimestampPolicies(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	dated := eventWith("ev-a", base, "evil.test")

	undated := eventWith("ev-b", time.Time{}, "evil.test")
	undated.Event.IngestedAt = base.Add(60 * 24 * time.Hour)

	events := []EventIndicators{dated, undated}

	if got := New(Config{}).Correlate(events); len(got) != 1 {
		t.Fatalf("match_any should pair undated events, got %+v", got)
	}
	if got := New(Config{MissingTimestampPolicy: PolicyExclude}).Correlate(events); len(got) != 0 {
		t.Fatalf("exclude should drop undated events from clustering, got %+v", got)
	}
	// Under use_ingest_time the ingestion timestamp is 60 days away, outside
	// the default window.
	if got := New(Config{MissingTimestampPolicy: PolicyUseIngestTime}).Correlate(events); len(got) != 0 {
		t.Fatalf("use_ingest_time should apply the window to ingestion time, got %+v", got)
	}
}

func TestCorrelateEmptyBatch(t *testing.T) {
	if got := New(Config{}).Correlate(nil); len(got) != 0 {
		t.Fatalf("empty batch should yield no campaigns, got %+v", got)
	}
}

func TestCorrelateMinCampaignSize(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	events := []EventIndicators{
		eventWith("ev-a", base, "evil.test"),
		eventWith("ev-b", base.Add(time.Hour), "evil.test"),
	}

	if got := New(Config{MinCampaignSize: 3}).Correlate(events); len(got) != 0 {
		t.Fatalf("pair should not form a campaign when the minimum size is 3, got %+v", got)
	}
}
