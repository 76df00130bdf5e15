package state

import (
	"encoding/json"
	"math"
)

// FileStats is the per-file entry of a snapshot.
type FileStats struct {
	ViolationCount int `json:"violationCount"`
}

// Snapshot is the durable governance history of one project.
// All three maps are always non-nil.
type Snapshot struct {
	Violations map[string]int       `json:"violations"`
	Files      map[string]FileStats `json:"files"`
	Entropy    map[string]float64   `json:"entropy"`
}

// Empty returns a snapshot with all maps allocated.
func Empty() *Snapshot {
	return &Snapshot{
		Violations: make(map[string]int),
		Files:      make(map[string]FileStats),
		Entropy:    make(map[string]float64),
	}
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	out := Empty()
	for k, v := range s.Violations {
		out.Violations[k] = v
	}
	for k, v := range s.Files {
		out.Files[k] = v
	}
	for k, v := range s.Entropy {
		out.Entropy[k] = v
	}
	return out
}

// Round4 rounds v to four decimal places.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Sanitize decodes raw state JSON leniently.
//
// Unknown top-level keys are ignored. A map that is not a JSON object is
// treated as empty. Violation counts and entropy values that are not finite
// numbers are dropped, as are file entries without a numeric
// violationCount. Entropy values are rounded to four decimals. Fractional
// counts are truncated.
//
// An error is returned only when data is not a JSON object at all.
func Sanitize(data []byte) (*Snapshot, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errNotObject
	}

	snap := Empty()

	for id, raw := range objectEntries(doc["violations"]) {
		if n, ok := finiteNumber(raw); ok {
			snap.Violations[id] = int(math.Trunc(n))
		}
	}

	for path, raw := range objectEntries(doc["files"]) {
		entry := objectEntries(raw)
		if n, ok := finiteNumber(entry["violationCount"]); ok {
			snap.Files[path] = FileStats{ViolationCount: int(math.Trunc(n))}
		}
	}

	for path, raw := range objectEntries(doc["entropy"]) {
		if n, ok := finiteNumber(raw); ok {
			snap.Entropy[path] = Round4(n)
		}
	}

	return snap, nil
}

func objectEntries(raw json.RawMessage) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	return entries
}

func finiteNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
