package correlate

import (
	"sort"
	"time"

	"ctiflow/pkg/models"
)

// Missing-timestamp policies for temporal matching. The permissive default
// treats an undated event as inside every window; stricter deployments can
// substitute the ingestion time or exclude undated events from clustering.
const (
	PolicyMatchAny      = "match_any"
	PolicyUseIngestTime = "use_ingest_time"
	PolicyExclude       = "exclude"
)

// Config controls campaign clustering.
type Config struct {
	Window                 time.Duration
	MinSharedIndicators    int
	MinCampaignSize        int
	MissingTimestampPolicy string
}

// EventIndicators pairs an event with its extracted indicator set.
type EventIndicators struct {
	Event *models.Event
	Set   models.IndicatorSet
}

// Correlator groups a batch of events into campaigns. The co-occurrence
// graph is local to each Correlate call; no state is carried between runs.
type Correlator struct {
	cfg Config
	now func() time.Time
}

// New creates a correlator, applying defaults for unset fields.
func New(cfg Config) *Correlator {
	if cfg.Window <= 0 {
		cfg.Window = 14 * 24 * time.Hour
	}
	if cfg.MinSharedIndicators <= 0 {
		cfg.MinSharedIndicators = 1
	}
	if cfg.MinCampaignSize < 2 {
		cfg.MinCampaignSize = 2
	}
	if cfg.MissingTimestampPolicy == "" {
		cfg.MissingTimestampPolicy = PolicyMatchAny
	}
	return &Correlator{cfg: cfg, now: time.Now}
}

type temporalKey struct {
	t        time.Time
	hasTime  bool
	excluded bool
}

// Correlate partitions the batch into campaigns. Two events connect when
// they share at least MinSharedIndicators confidence-bearing normalized
// values and their timestamps fall within the window; connected components
// of size >= MinCampaignSize become campaigns. Output is invariant to input
// permutation.
func (c *Correlator) Correlate(batch []EventIndicators) []models.Campaign {
	if len(batch) == 0 {
		return nil
	}

	items := append([]EventIndicators(nil), batch...)
	sort.Slice(items, func(i, j int) bool {
		return items[i].Event.EventID < items[j].Event.EventID
	})

	keys := make([]temporalKey, len(items))
	for i, item := range items {
		keys[i] = c.temporalKeyFor(item.Event)
	}

	// Invert indicator sets: normalized value -> member indexes.
	valueEvents := make(map[string][]int, len(items)*4)
	for i, item := range items {
		for _, value := range item.Set.ActiveValues() {
			valueEvents[value] = append(valueEvents[value], i)
		}
	}

	type pair struct{ a, b int }
	sharedCounts := make(map[pair]int)
	for _, idxs := range valueEvents {
		if len(idxs) < 2 {
			continue
		}
		for i := 0; i < len(idxs); i++ {
			for j := i + 1; j < len(idxs); j++ {
				sharedCounts[pair{idxs[i], idxs[j]}]++
			}
		}
	}

	uf := newUnionFind(len(items))
	for p, count := range sharedCounts {
		if count < c.cfg.MinSharedIndicators {
			continue
		}
		if !withinWindow(keys[p.a], keys[p.b], c.cfg.Window) {
			continue
		}
		uf.union(p.a, p.b)
	}

	components := make(map[int][]int, len(items))
	for i := range items {
		root := uf.find(i)
		components[root] = append(components[root], i)
	}

	campaigns := make([]models.Campaign, 0, len(components))
	formedAt := c.now().UTC()
	for _, member := range components {
		if len(member) < c.cfg.MinCampaignSize {
			continue
		}
		campaigns = append(campaigns, c.buildCampaign(items, keys, member, formedAt))
	}

	sort.Slice(campaigns, func(i, j int) bool {
		return campaigns[i].CampaignID < campaigns[j].CampaignID
	})
	return campaigns
}

func (c *Correlator) buildCampaign(items []EventIndicators, keys []temporalKey, member []int, formedAt time.Time) models.Campaign {
	memberIDs := make([]string, 0, len(member))
	for _, idx := range member {
		memberIDs = append(memberIDs, items[idx].Event.EventID)
	}
	sort.Strings(memberIDs)

	// Values carried by at least two members, for rationale and debugging.
	valueMembers := make(map[string]int, len(member)*4)
	for _, idx := range member {
		for _, value := range items[idx].Set.ActiveValues() {
			valueMembers[value]++
		}
	}
	shared := make([]string, 0, len(valueMembers))
	for value, n := range valueMembers {
		if n >= 2 {
			shared = append(shared, value)
		}
	}
	sort.Strings(shared)

	var span models.TimeSpan
	for _, idx := range member {
		t, ok := items[idx].Event.ObservedAt()
		if t.IsZero() && !ok {
			continue
		}
		if span.Start.IsZero() || t.Before(span.Start) {
			span.Start = t
		}
		if span.End.IsZero() || t.After(span.End) {
			span.End = t
		}
	}

	return models.Campaign{
		CampaignID:       models.ComputeCampaignID(memberIDs),
		MemberEventIDs:   memberIDs,
		SharedIndicators: shared,
		TimeSpan:         span,
		FormedAt:         formedAt,
	}
}

func (c *Correlator) temporalKeyFor(event *models.Event) temporalKey {
	t, published := event.ObservedAt()
	if published {
		return temporalKey{t: t, hasTime: true}
	}
	switch c.cfg.MissingTimestampPolicy {
	case PolicyUseIngestTime:
		if !event.IngestedAt.IsZero() {
			return temporalKey{t: event.IngestedAt, hasTime: true}
		}
		return temporalKey{}
	case PolicyExclude:
		return temporalKey{excluded: true}
	default:
		// match_any: undated events fall inside every window.
		return temporalKey{}
	}
}

func withinWindow(a, b temporalKey, window time.Duration) bool {
	if a.excluded || b.excluded {
		return false
	}
	if !a.hasTime || !b.hasTime {
		return true
	}
	d := a.t.Sub(b.t)
	if d < 0 {
		d = -d
	}
	return d <= window
}
