// Copyright 2026 CAP Contributors
//
// Entry Registry
//
// An append-only collection of signed attestation entries with a JSON
// canonical backend and an optional goleveldb read-through index.

package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/capassure/cap-agent/pkg/keys"
)

const SchemaVersion = "1.1"

// Entry is a v1.1 registry record.
type Entry struct {
	EntryID      string `json:"entry_id"`
	CreatedAt    string `json:"created_at"`
	PolicyID     string `json:"policy_id"`
	IRHash       string `json:"ir_hash"`
	ManifestHash string `json:"manifest_hash"`

	ProofHash         string `json:"proof_hash,omitempty"`
	PreviousEntryHash string `json:"previous_entry_hash,omitempty"`
	KID               string `json:"kid,omitempty"`
	Signature         string `json:"signature,omitempty"`
	PublicKey         string `json:"public_key,omitempty"`
	Scheme            string `json:"scheme,omitempty"`
	TimestampFileRef  string `json:"timestamp_file_ref,omitempty"`
	SelfVerification  string `json:"self_verification,omitempty"`
}

// Meta is the registry's metadata block.
type Meta struct {
	SchemaVersion string `json:"schema_version"`
	ToolVersion   string `json:"tool_version"`
	CreatedAt     string `json:"created_at"`
	MigratedFrom  string `json:"migrated_from,omitempty"`
	MigratedAt    string `json:"migrated_at,omitempty"`
}

// document is the on-disk JSON shape, v1.0 or v1.1.
type document struct {
	Meta    Meta    `json:"meta"`
	Entries []Entry `json:"entries"`
}

// legacyEntry is the pre-1.1 shape: a loose superset of fields, some of
// which may be absent.
type legacyEntry struct {
	EntryID      string `json:"entry_id,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	PolicyID     string `json:"policy_id,omitempty"`
	IRHash       string `json:"ir_hash,omitempty"`
	ManifestHash string `json:"manifest_hash,omitempty"`
	ProofHash    string `json:"proof_hash,omitempty"`
	KID          string `json:"kid,omitempty"`
	Signature    string `json:"signature,omitempty"`
	PublicKey    string `json:"public_key,omitempty"`
	Scheme       string `json:"scheme,omitempty"`
}

type legacyDocument struct {
	Meta    Meta          `json:"meta"`
	Entries []legacyEntry `json:"entries"`
}

// legacyPlaceholderProvider and legacyPlaceholderKeyName are the fixed
// KID-backfill identity the original v1.0 migration path used, kept
// unchanged so previously-migrated registries keep producing the same
// KIDs.
const (
	legacyPlaceholderProvider = "software"
	legacyPlaceholderKeyName  = "migrated"
)

// Registry is the unified façade over the JSON file and, optionally, a
// goleveldb read-through index.
type Registry struct {
	mu       sync.Mutex
	path     string
	doc      document
	kv       dbm.DB
	kvActive bool
}

// Open loads path, migrating a v1.0 document to v1.1 in memory if
// necessary. If kvPath is non-empty, a goleveldb index is opened at that
// directory and every Save mirrors entries into it.
func Open(path, kvPath string) (*Registry, error) {
	r := &Registry{path: path}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		r.doc = document{Meta: Meta{SchemaVersion: SchemaVersion, CreatedAt: now()}}
	} else if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	} else {
		doc, err := loadOrMigrate(raw)
		if err != nil {
			return nil, err
		}
		r.doc = *doc
	}

	if kvPath != "" {
		db, err := dbm.NewGoLevelDB("registry", kvPath)
		if err != nil {
			return nil, fmt.Errorf("registry: open kv index: %w", err)
		}
		r.kv = db
		r.kvActive = true
	}

	return r, nil
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }

// loadOrMigrate inspects raw and either decodes it as v1.1 directly or
// migrates it from v1.0, stamping migrated_from/migrated_at. Loading an
// already-v1.1 document never re-stamps migration metadata.
func loadOrMigrate(raw []byte) (*document, error) {
	var probe struct {
		Meta Meta `json:"meta"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("registry: parse: %w", err)
	}

	if probe.Meta.SchemaVersion == SchemaVersion {
		var doc document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("registry: parse v1.1: %w", err)
		}
		return &doc, nil
	}

	var legacy legacyDocument
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, fmt.Errorf("registry: parse v1.0: %w", err)
	}
	return migrate(&legacy), nil
}

// migrate converts a v1.0 document into v1.1, synthesizing required
// fields that are absent and backfilling KIDs using the fixed legacy
// placeholder identity.
func migrate(legacy *legacyDocument) *document {
	entries := make([]Entry, len(legacy.Entries))
	for i, le := range legacy.Entries {
		e := Entry{
			EntryID:      le.EntryID,
			CreatedAt:    le.CreatedAt,
			PolicyID:     le.PolicyID,
			IRHash:       le.IRHash,
			ManifestHash: le.ManifestHash,
			ProofHash:    le.ProofHash,
			KID:          le.KID,
			Signature:    le.Signature,
			PublicKey:    le.PublicKey,
			Scheme:       le.Scheme,
		}
		if e.EntryID == "" {
			e.EntryID = fmt.Sprintf("migrated_entry_%04d", i+1)
		}
		if e.PolicyID == "" {
			e.PolicyID = "migrated.v1"
		}
		if e.IRHash == "" {
			e.IRHash = "sha3-256:migrated_" + e.ManifestHash
		}
		if e.KID == "" && e.PublicKey != "" {
			pub := []byte(e.PublicKey)
			e.KID = string(keys.DeriveKID(pub, legacyPlaceholderProvider, legacyPlaceholderKeyName))
		}
		entries[i] = e
	}

	return &document{
		Meta: Meta{
			SchemaVersion: SchemaVersion,
			ToolVersion:   legacy.Meta.ToolVersion,
			CreatedAt:     legacy.Meta.CreatedAt,
			MigratedFrom:  "1.0",
			MigratedAt:    now(),
		},
		Entries: entries,
	}
}

// Add appends a new entry. If provider is non-nil, the signing key's
// status is checked first: retired or revoked keys are rejected. Already
// existing entries are never re-checked (grandfathered).
func (r *Registry) Add(entry Entry, provider *keys.SoftwareProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if provider != nil && entry.KID != "" {
		meta, err := provider.Metadata(keys.KID(entry.KID))
		if err == nil && meta.Status != keys.StatusActive {
			return fmt.Errorf("registry: signing key %s has status %q, only active keys may sign new entries", entry.KID, meta.Status)
		}
	}

	r.doc.Entries = append(r.doc.Entries, entry)
	return r.save()
}

// Save persists the current in-memory document, including any v1.0 to
// v1.1 migration that Open performed in memory.
func (r *Registry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save()
}

// List returns a copy of all entries.
func (r *Registry) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.doc.Entries))
	copy(out, r.doc.Entries)
	return out
}

// Meta returns the registry's metadata block.
func (r *Registry) Meta() Meta {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.Meta
}

// save writes the document to disk and, when the KV index is active,
// mirrors every entry into it keyed by entry id.
func (r *Registry) save() error {
	raw, err := json.MarshalIndent(&r.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("registry: create dir: %w", err)
	}
	if err := os.WriteFile(r.path, raw, 0o644); err != nil {
		return fmt.Errorf("registry: write: %w", err)
	}

	if r.kvActive {
		for _, e := range r.doc.Entries {
			b, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("registry: encode kv entry %s: %w", e.EntryID, err)
			}
			if err := r.kv.Set([]byte(e.EntryID), b); err != nil {
				return fmt.Errorf("registry: mirror kv entry %s: %w", e.EntryID, err)
			}
		}
	}
	return nil
}

// Lookup reads through the KV index when active, falling back to the
// in-memory slice otherwise.
func (r *Registry) Lookup(entryID string) (Entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.kvActive {
		b, err := r.kv.Get([]byte(entryID))
		if err != nil {
			return Entry{}, false, fmt.Errorf("registry: kv lookup: %w", err)
		}
		if b == nil {
			return Entry{}, false, nil
		}
		var e Entry
		if err := json.Unmarshal(b, &e); err != nil {
			return Entry{}, false, fmt.Errorf("registry: decode kv entry: %w", err)
		}
		return e, true, nil
	}

	for _, e := range r.doc.Entries {
		if e.EntryID == entryID {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// Close releases the KV index, if one is open.
func (r *Registry) Close() error {
	if r.kv != nil {
		return r.kv.Close()
	}
	return nil
}
