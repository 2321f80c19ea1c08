package quakescan

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestJsonDumpsCompact(t *testing.T) {
	got, err := JsonDumps(map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("JsonDumps: %v", err)
	}
	if got != `{"a":1}` {
		t.Errorf("JsonDumps = %q, want %q", got, `{"a":1}`)
	}
}

func TestJsonIndentDumpsIndented(t *testing.T) {
	got, err := JsonIndentDumps(map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("JsonIndentDumps: %v", err)
	}
	want := "{\n    \"a\": 1\n}"
	if got != want {
		t.Errorf("JsonIndentDumps = %q, want %q", got, want)
	}
}

func TestWriteJSONWritesIndentedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	n, err := WriteJSON(path, "", map[string]int{"x": 7})
	if err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if n == 0 {
		t.Error("WriteJSON reported 0 bytes written")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var out map[string]int
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["x"] != 7 {
		t.Errorf("out[x] = %d, want 7", out["x"])
	}
}
