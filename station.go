package quakescan

import (
	"encoding/json"
	"errors"
	"os"
)

// Station is a single recording site: name, geographic position, and
// elevation (positive upward). A StationList's order indexes every
// per-station array a LUT, OnsetBundle, or CoalescenceScanner carries.
type Station struct {
	Name      string
	Longitude float64
	Latitude  float64
	Elevation float64
}

// StationList is an ordered set of Stations. Order is the contract: index i
// here is index i in every per-station travel-time and onset array.
type StationList []Station

// IndexOf returns the position of name within the list, or -1.
func (s StationList) IndexOf(name string) int {
	for i, st := range s {
		if st.Name == name {
			return i
		}
	}
	return -1
}

// Validate rejects an empty station set, returning ErrNoStations, and
// rejects duplicate station names.
func (s StationList) Validate() error {
	if len(s) == 0 {
		return ErrNoStations
	}
	seen := make(map[string]struct{}, len(s))
	for _, st := range s {
		if _, dup := seen[st.Name]; dup {
			return errors.Join(ErrConfig, errors.New("duplicate station name: "+st.Name))
		}
		seen[st.Name] = struct{}{}
	}
	return nil
}

// ReadStationsJSON reads a StationList from a JSON array of Station
// objects, following config.go's plain encoding/json loading convention
// rather than the CSV format velocity models use (station tables carry no
// external-interface format requirement of their own).
func ReadStationsJSON(path string) (StationList, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrIO, err)
	}

	var stations StationList
	if err := json.Unmarshal(raw, &stations); err != nil {
		return nil, errors.Join(ErrConfig, err)
	}

	if err := stations.Validate(); err != nil {
		return nil, err
	}
	return stations, nil
}
