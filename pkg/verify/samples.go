package verify

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// maxSamplesPerStruct caps how many recorded samples are kept per struct;
// later lines beyond the cap are ignored.
const maxSamplesPerStruct = 3

// Sample is one recorded fill for a struct: raw Rust statements that
// populate c0 before the roundtrip.
type Sample struct {
	Struct string   `json:"struct"`
	Fill   []string `json:"fill"`
}

// SampleStore holds recorded fills loaded from a JSONL file.
type SampleStore struct {
	samples map[string][][]string
}

// LoadSamples reads a samples.jsonl file. A missing file yields an empty
// store; a malformed line is an error, not a skip, because silently dropped
// samples would change verification inputs without a trace.
func LoadSamples(path string) (*SampleStore, error) {
	store := &SampleStore{samples: make(map[string][][]string)}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("verify: open samples %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var s Sample
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("verify: samples %s line %d: %w", path, line, err)
		}
		if s.Struct == "" || len(s.Fill) == 0 {
			continue
		}
		if len(store.samples[s.Struct]) >= maxSamplesPerStruct {
			continue
		}
		store.samples[s.Struct] = append(store.samples[s.Struct], s.Fill)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("verify: read samples %s: %w", path, err)
	}
	return store, nil
}

// Fill returns the first recorded fill for a struct, or nil.
func (s *SampleStore) Fill(structName string) []string {
	if s == nil {
		return nil
	}
	if fills := s.samples[structName]; len(fills) > 0 {
		return fills[0]
	}
	return nil
}

// Count returns how many samples are recorded for a struct.
func (s *SampleStore) Count(structName string) int {
	if s == nil {
		return 0
	}
	return len(s.samples[structName])
}
