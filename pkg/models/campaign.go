package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// TimeSpan is the min/max observed timestamp across campaign members.
type TimeSpan struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// Campaign is a cluster of events sharing indicators within a temporal
// window. Membership is a partition: an event belongs to at most one
// campaign per run.
type Campaign struct {
	CampaignID       string    `json:"campaign_id"`
	MemberEventIDs   []string  `json:"member_event_ids"`
	SharedIndicators []string  `json:"shared_indicators"`
	TimeSpan         TimeSpan  `json:"time_span"`
	FormedAt         time.Time `json:"formed_at"`
}

// ComputeCampaignID derives the deterministic campaign identity from the
// sorted member event IDs, so reruns over the same input produce the same ID
// regardless of insertion order. The input slice is not modified.
func ComputeCampaignID(memberEventIDs []string) string {
	members := append([]string(nil), memberEventIDs...)
	sort.Strings(members)
	sum := sha256.Sum256([]byte(strings.Join(members, "\n")))
	return "CAMP-" + hex.EncodeToString(sum[:])[:16]
}
