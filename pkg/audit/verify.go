// Copyright 2026 CAP Contributors

package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/capassure/cap-agent/pkg/hashing"
)

// Report is the outcome of verifying a chain file end to end.
type Report struct {
	OK          bool
	TotalEvents int
	TamperIndex *int
	Error       string
}

// VerifyChain streams path and, at each line, recomputes self_hash (must
// equal the stored value — detects field tampering) and checks prev_hash
// equals the previous line's self_hash (detects reordering, deletion, or
// splicing). TamperIndex is the zero-based position of the first offending
// event.
func VerifyChain(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	defer f.Close()

	report := &Report{OK: true}
	prevHash := hashing.ZeroDigestHex

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	index := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			idx := index
			report.OK = false
			report.TamperIndex = &idx
			report.Error = fmt.Sprintf("event %d: invalid json: %v", index, err)
			return report, nil
		}

		recomputed := computeDigest(ev.Seq, ev.TS, ev.Event, ev.Details, ev.PrevHash)
		if recomputed != ev.SelfHash {
			idx := index
			report.OK = false
			report.TamperIndex = &idx
			report.Error = fmt.Sprintf("event %d: self-hash mismatch", index)
			return report, nil
		}
		if ev.PrevHash != prevHash {
			idx := index
			report.OK = false
			report.TamperIndex = &idx
			report.Error = fmt.Sprintf("event %d: prev-hash does not match prior event's self-hash", index)
			return report, nil
		}

		prevHash = ev.SelfHash
		index++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: read %s: %w", path, err)
	}

	report.TotalEvents = index
	return report, nil
}

// ExportEvents streams path and returns every event matching the optional
// filters.
func ExportEvents(path string, fromTS, toTS *time.Time, policyID string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	defer f.Close()

	var out []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("audit: malformed event line: %w", err)
		}

		if fromTS != nil || toTS != nil {
			ts, err := time.Parse(time.RFC3339, ev.TS)
			if err != nil {
				continue
			}
			if fromTS != nil && ts.Before(*fromTS) {
				continue
			}
			if toTS != nil && ts.After(*toTS) {
				continue
			}
		}

		if policyID != "" {
			var d Details
			if err := json.Unmarshal(ev.Details, &d); err != nil || d.PolicyID != policyID {
				continue
			}
		}

		out = append(out, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: read %s: %w", path, err)
	}
	return out, nil
}
