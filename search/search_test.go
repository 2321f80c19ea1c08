package search

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindLUTFindsOnlyMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	writeFile(t, filepath.Join(dir, "station_a.lut"), "lut")
	writeFile(t, filepath.Join(sub, "station_b.lut"), "lut")
	writeFile(t, filepath.Join(dir, "model.vel.csv"), "csv")

	found := FindLUT(dir, "")
	if len(found) != 2 {
		t.Fatalf("FindLUT found %d files, want 2: %v", len(found), found)
	}
}

func TestFindVelocityModelsFindsOnlyVelCSV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.vel.csv"), "csv")
	writeFile(t, filepath.Join(dir, "a.lut"), "lut")

	found := FindVelocityModels(dir, "")
	if len(found) != 1 {
		t.Fatalf("FindVelocityModels found %d files, want 1: %v", len(found), found)
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}
