// Copyright 2026 CAP Contributors
//
// Canonical JSON Serialization
//
// Deterministic re-encoding of arbitrary JSON so that hashing the result is
// stable regardless of the key order in the source document. Object keys
// are sorted; array order is preserved (array order is semantically
// meaningful in policy and manifest documents, key order is not).

package hashing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// CanonicalizeJSON decodes b and re-encodes it with object keys sorted and
// no insignificant whitespace.
func CanonicalizeJSON(b []byte) ([]byte, error) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("hashing: decode json: %w", err)
	}
	canon := canonicalizeValue(v)
	out, err := json.Marshal(canon)
	if err != nil {
		return nil, fmt.Errorf("hashing: encode canonical json: %w", err)
	}
	return out, nil
}

// canonicalizeValue recursively rebuilds v using a key-sorted representation
// for maps; json.Marshal on a plain map[string]interface{} already sorts
// keys, but we rebuild explicitly so the intent is not accidental.
func canonicalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]interface{}, len(val))
		for _, k := range keys {
			out[k] = canonicalizeValue(val[k])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = canonicalizeValue(e)
		}
		return out
	default:
		return val
	}
}

// CanonicalizeStruct marshals v to JSON directly: callers that control the
// Go struct's field order and tags (as every type in this module does) get
// a byte-stable encoding for free, matching how the original policy
// compiler commits to struct-declaration-order serialization rather than an
// explicit sort step.
func CanonicalizeStruct(v interface{}) ([]byte, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("hashing: marshal canonical struct: %w", err)
	}
	return out, nil
}

// HashCanonicalStruct marshals v canonically and returns its prefixed
// SHA3-256 hex digest in one step.
func HashCanonicalStruct(v interface{}) (string, error) {
	b, err := CanonicalizeStruct(v)
	if err != nil {
		return "", err
	}
	return HexLowerPrefixed(b), nil
}

// SortedKeyLeaf builds a domain-separated, field-sorted leaf encoding for a
// flat record (a map from field name to string value) of the kind used for
// supplier and UBO leaves. Field order is normalized by sorting field
// names so leaf hashes do not depend on map iteration order.
func SortedKeyLeaf(domain string, fields map[string]string) []byte {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString(domain)
	for _, k := range keys {
		buf.WriteByte('\x00')
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(fields[k])
	}
	return buf.Bytes()
}
