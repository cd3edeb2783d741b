package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"ctiflow/internal/logger"
	"ctiflow/internal/metrics"
	"ctiflow/pkg/models"
)

// ReadEvents loads a normalized-events artifact. Malformed or incomplete
// records are skipped with a warning; an unreadable file is fatal to the run.
// An empty file yields an empty batch, which is a valid no-op run.
func ReadEvents(path string) ([]*models.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	events := make([]*models.Event, 0, 1024)
	s := bufio.NewScanner(f)
	buf := make([]byte, 0, 1024*1024)
	s.Buffer(buf, 8*1024*1024)

	lineNo := 0
	skipped := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		var event models.Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			logger.Warnf("Skipping malformed event record: line=%d err=%v", lineNo, err)
			skipped++
			continue
		}
		if event.NormalizedText == "" {
			logger.Warnf("Skipping event record without normalized_text: line=%d", lineNo)
			skipped++
			continue
		}
		if event.EventID == "" {
			if event.SourceURL == "" {
				logger.Warnf("Skipping event record without event_id or source_url: line=%d", lineNo)
				skipped++
				continue
			}
			event.EventID = models.ComputeEventID(event.SourceURL, event.NormalizedText)
		}
		if event.IngestedAt.IsZero() {
			event.IngestedAt = time.Now().UTC()
		}
		events = append(events, &event)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}

	if skipped > 0 {
		metrics.EventsSkipped.Add(float64(skipped))
		logger.Warnf("Input contained %d unusable records out of %d lines", skipped, lineNo)
	}
	return events, nil
}
