package jsonl

import (
	"os"
	"path/filepath"
	"testing"

	"ctiflow/pkg/models"
)

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func TestReadEventsSkipsMalformedAndIncompleteRecords(t *testing.T) {
	input := `{"event_id":"ev-1","source":"feed","normalized_text":"good record"}
not json at all
{"event_id":"ev-2","source":"feed"}

{"event_id":"ev-3","source":"feed","normalized_text":"another good one"}
`
	events, err := ReadEvents(writeInput(t, input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 usable events, got %d", len(events))
	}
	if events[0].EventID != "ev-1" || events[1].EventID != "ev-3" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestReadEventsDerivesMissingEventID(t *testing.T) {
	input := `{"source":"feed","source_url":"https://feed.test/report/1","normalized_text":"derived identity"}
`
	events, err := ReadEvents(writeInput(t, input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	want := models.ComputeEventID("https://feed.test/report/1", "derived identity")
	if events[0].EventID != want {
		t.Fatalf("expected derived id %s, got %s", want, events[0].EventID)
	}
	if events[0].IngestedAt.IsZero() {
		t.Fatalf("expected ingestion time to be filled")
	}
}

func TestReadEventsEmptyFileYieldsEmptyBatch(t *testing.T) {
	events, err := ReadEvents(writeInput(t, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected empty batch, got %d", len(events))
	}
}

func TestReadEventsMissingFileIsFatal(t *testing.T) {
	if _, err := ReadEvents(filepath.Join(t.TempDir(), "absent.jsonl")); err == nil {
		t.Fatalf("expected error for missing input file")
	}
}
