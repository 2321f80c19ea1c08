package quakescan

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStationListIndexOf(t *testing.T) {
	s := StationList{{Name: "A"}, {Name: "B"}, {Name: "C"}}
	if s.IndexOf("B") != 1 {
		t.Errorf("IndexOf(B) = %d, want 1", s.IndexOf("B"))
	}
	if s.IndexOf("Z") != -1 {
		t.Errorf("IndexOf(Z) = %d, want -1", s.IndexOf("Z"))
	}
}

func TestStationListValidateRejectsEmpty(t *testing.T) {
	var s StationList
	if err := s.Validate(); err == nil {
		t.Fatal("expected ErrNoStations")
	}
}

func TestStationListValidateRejectsDuplicates(t *testing.T) {
	s := StationList{{Name: "A"}, {Name: "A"}}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for duplicate station name")
	}
}

func TestReadStationsJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stations.json")
	contents := `[{"Name":"STA1","Longitude":1.0,"Latitude":2.0,"Elevation":3.0},` +
		`{"Name":"STA2","Longitude":4.0,"Latitude":5.0,"Elevation":6.0}]`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	stations, err := ReadStationsJSON(path)
	if err != nil {
		t.Fatalf("ReadStationsJSON: %v", err)
	}
	if len(stations) != 2 {
		t.Fatalf("len(stations) = %d, want 2", len(stations))
	}
	if stations[0].Name != "STA1" || stations[1].Elevation != 6.0 {
		t.Errorf("unexpected station contents: %+v", stations)
	}
}

func TestReadStationsJSONRejectsEmptyList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := ReadStationsJSON(path); err == nil {
		t.Fatal("expected ErrNoStations for empty station list")
	}
}
