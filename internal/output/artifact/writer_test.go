package artifact

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type row struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

func TestWriteJSONLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "rows.jsonl")
	in := []row{{ID: "a", Value: 1}, {ID: "b", Value: 2}}

	if err := WriteJSONL(path, in); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer f.Close()

	var out []row
	s := bufio.NewScanner(f)
	for s.Scan() {
		var r row
		if err := json.Unmarshal(s.Bytes(), &r); err != nil {
			t.Fatalf("bad line %q: %v", s.Text(), err)
		}
		out = append(out, r)
	}
	if len(out) != 2 || out[0] != in[0] || out[1] != in[1] {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestWriteJSONLEmptyBatchPublishesEmptyArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.jsonl")

	if err := WriteJSONL(path, []row(nil)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("expected empty artifact, got %d bytes", info.Size())
	}
}

func TestWriteJSONLReplacesPreviousArtifactAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rows.jsonl")

	if err := WriteJSONL(path, []row{{ID: "old", Value: 1}}); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := WriteJSONL(path, []row{{ID: "new", Value: 2}}); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(data), `"new"`) || strings.Contains(string(data), `"old"`) {
		t.Fatalf("artifact not replaced: %s", data)
	}

	// No temp files may linger after publish.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the published artifact, got %d entries", len(entries))
	}
}
