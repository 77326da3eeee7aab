// Copyright 2026 CAP Contributors
//
// Append-Only Audit Chain
//
// One JSON object per line, newline-delimited, append-only. Each event's
// self_hash commits to its own fields plus the previous event's self_hash,
// so any edit, reorder, or deletion is detectable by re-streaming the file.

package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/capassure/cap-agent/pkg/hashing"
)

// Result is the outcome an event may record.
type Result string

const (
	ResultOk   Result = "Ok"
	ResultWarn Result = "Warn"
	ResultFail Result = "Fail"
)

// Event is one audit chain entry.
type Event struct {
	Seq      int64           `json:"seq"`
	TS       string          `json:"ts"`
	Event    string          `json:"event"`
	Details  json.RawMessage `json:"details"`
	PrevHash string          `json:"prev_hash"`
	SelfHash string          `json:"self_hash"`
}

// Details is the free-form payload Append accepts; fields are omitted from
// the encoded JSON when unset, which participates in the fields' own hash
// input so presence matters.
type Details struct {
	PolicyID     string `json:"policy_id,omitempty"`
	IRHash       string `json:"ir_hash,omitempty"`
	ManifestHash string `json:"manifest_hash,omitempty"`
	Result       Result `json:"result,omitempty"`
	RunID        string `json:"run_id,omitempty"`
}

// Chain is an open, append-only audit log backed by a single file.
type Chain struct {
	mu   sync.Mutex
	path string
	tail string
	seq  int64
	log  *log.Logger
}

var logger = log.New(os.Stderr, "[audit] ", log.LstdFlags)

// Open rehydrates (tail hash, next seq) from path by streaming to its end,
// or initializes a fresh chain at the genesis hash if the file does not
// exist yet.
func Open(path string) (*Chain, error) {
	c := &Chain{path: path, log: logger}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		c.tail = hashing.ZeroDigestHex
		c.seq = 0
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	defer f.Close()

	tail := hashing.ZeroDigestHex
	var seq int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		tail = ev.SelfHash
		seq = ev.Seq
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: read %s: %w", path, err)
	}

	c.tail = tail
	c.seq = seq
	return c, nil
}

// Tip returns the current tail self_hash and sequence number.
func (c *Chain) Tip() (hash string, seq int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tail, c.seq
}

// computeDigest hashes fields in the exact fixed order the format
// requires: seq, ts, event, details-json, prev_hash, each as raw string
// bytes — prev_hash is the literal "0x..." text, not decoded hex, which
// preserves compatibility with how the original chain computed it.
func computeDigest(seq int64, ts, event string, details json.RawMessage, prevHash string) string {
	buf := make([]byte, 0, 256)
	buf = append(buf, strconv.FormatInt(seq, 10)...)
	buf = append(buf, ts...)
	buf = append(buf, event...)
	buf = append(buf, details...)
	buf = append(buf, prevHash...)
	return hashing.HexLowerPrefixed(buf)
}

// Append records a new event and returns it. The call is atomic: the line
// is written with a single Write call under the chain's lock, and the
// in-memory tail is only advanced after the write succeeds.
func (c *Chain) Append(eventType string, details Details) (*Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal details: %w", err)
	}

	seq := c.seq + 1
	ts := time.Now().UTC().Format(time.RFC3339)
	selfHash := computeDigest(seq, ts, eventType, detailsJSON, c.tail)

	ev := Event{
		Seq:      seq,
		TS:       ts,
		Event:    eventType,
		Details:  detailsJSON,
		PrevHash: c.tail,
		SelfHash: selfHash,
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal event: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open for append: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return nil, fmt.Errorf("audit: append event: %w", err)
	}

	c.tail = selfHash
	c.seq = seq
	return &ev, nil
}
