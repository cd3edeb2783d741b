package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"ctiflow/pkg/models"
)

// RedisConfig configures Redis access for run-state persistence.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisStore persists extracted indicators, campaigns and score records.
// Indicator writes are upserts keyed on (source event, normalized value), so
// re-running a batch never duplicates rows or moves first_seen forward.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore constructs a Redis-backed run-state store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "ctiflow"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis store: %w", err)
	}

	return &RedisStore{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix), ttl: cfg.TTL}, nil
}

// UpsertIndicators writes indicators, ignoring any (event, value) pair that
// is already present. Returns the number of newly inserted indicators.
func (s *RedisStore) UpsertIndicators(ctx context.Context, sets []models.IndicatorSet) (int, error) {
	pipe := s.client.Pipeline()
	inserts := make([]*redis.BoolCmd, 0, 64)

	for _, set := range sets {
		for _, ind := range set.Indicators {
			payload, err := json.Marshal(ind)
			if err != nil {
				return 0, fmt.Errorf("marshal indicator: %w", err)
			}
			cmd := pipe.SetNX(ctx, s.indicatorKey(ind.SourceEventID, string(ind.IOCType), ind.NormalizedValue), payload, s.ttl)
			inserts = append(inserts, cmd)

			if ind.Confidence > 0 {
				pipe.SAdd(ctx, s.sightingsKey(ind.NormalizedValue), ind.SourceEventID)
				if s.ttl > 0 {
					pipe.Expire(ctx, s.sightingsKey(ind.NormalizedValue), s.ttl)
				}
			}
		}
	}
	if len(inserts) == 0 {
		return 0, nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("upsert indicators: %w", err)
	}

	inserted := 0
	for _, cmd := range inserts {
		if cmd.Val() {
			inserted++
		}
	}
	return inserted, nil
}

// WriteCampaigns stores campaign records keyed by campaign ID.
func (s *RedisStore) WriteCampaigns(ctx context.Context, campaigns []models.Campaign) error {
	if len(campaigns) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, c := range campaigns {
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal campaign: %w", err)
		}
		pipe.Set(ctx, s.campaignKey(c.CampaignID), payload, s.ttl)
		for _, eventID := range c.MemberEventIDs {
			pipe.Set(ctx, s.memberKey(eventID), c.CampaignID, s.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write campaigns: %w", err)
	}
	return nil
}

// WriteScores stores score records keyed by event ID.
func (s *RedisStore) WriteScores(ctx context.Context, scores []models.ScoreRecord) error {
	if len(scores) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, rec := range scores {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal score record: %w", err)
		}
		pipe.Set(ctx, s.scoreKey(rec.EventID), payload, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write scores: %w", err)
	}
	return nil
}

// SightingCount returns how many distinct events a value was observed in.
func (s *RedisStore) SightingCount(ctx context.Context, normalizedValue string) (int64, error) {
	n, err := s.client.SCard(ctx, s.sightingsKey(normalizedValue)).Result()
	if err != nil {
		return 0, fmt.Errorf("read sighting count: %w", err)
	}
	return n, nil
}

// Close closes Redis resources.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) indicatorKey(eventID, iocType, value string) string {
	return s.prefix + ":indicator:" + eventID + ":" + iocType + ":" + value
}

func (s *RedisStore) sightingsKey(value string) string {
	return s.prefix + ":sightings:" + value
}

func (s *RedisStore) campaignKey(campaignID string) string {
	return s.prefix + ":campaign:" + campaignID
}

func (s *RedisStore) memberKey(eventID string) string {
	return s.prefix + ":campaign_member:" + eventID
}

func (s *RedisStore) scoreKey(eventID string) string {
	return s.prefix + ":score:" + eventID
}
