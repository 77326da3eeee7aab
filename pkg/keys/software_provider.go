// Copyright 2026 CAP Contributors
//
// Software Key Provider
//
// File-backed key store supporting both signature schemes behind the
// Provider interface. Grounded on the teacher's load-or-generate-then-save
// key manager pattern, generalized from a single BLS validator key to a
// named multi-key, multi-scheme store.

package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const softwareProviderID = "software"

type storedKey struct {
	Metadata   Metadata `json:"metadata"`
	PrivateKey string   `json:"private_key_hex"`
}

type softwareStore struct {
	Keys       map[KID]storedKey `json:"keys"`
	ActiveKID  KID                `json:"active_kid"`
}

// SoftwareProvider is a JSON-file-backed Provider. Safe for concurrent
// use; every mutation is followed by a full rewrite of the backing file.
type SoftwareProvider struct {
	mu   sync.Mutex
	path string
	data softwareStore
}

// OpenSoftwareProvider loads path if it exists, or initializes an empty
// store ready to receive generated keys.
func OpenSoftwareProvider(path string) (*SoftwareProvider, error) {
	p := &SoftwareProvider{path: path, data: softwareStore{Keys: map[KID]storedKey{}}}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read key store: %v", ErrConfigError, err)
	}
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p.data); err != nil {
		return nil, fmt.Errorf("%w: parse key store: %v", ErrConfigError, err)
	}
	if p.data.Keys == nil {
		p.data.Keys = map[KID]storedKey{}
	}
	return p, nil
}

func (p *SoftwareProvider) save() error {
	raw, err := json.MarshalIndent(&p.data, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode key store: %v", ErrProviderError, err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("%w: create key store dir: %v", ErrProviderError, err)
	}
	if err := os.WriteFile(p.path, raw, 0o600); err != nil {
		return fmt.Errorf("%w: write key store: %v", ErrProviderError, err)
	}
	return nil
}

// ProviderID implements Provider.
func (p *SoftwareProvider) ProviderID() string { return softwareProviderID }

// GenerateEd25519 creates a new ed25519 key named keyName, activates it,
// and persists the store.
func (p *SoftwareProvider) GenerateEd25519(keyName, owner string) (KID, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("%w: generate ed25519 key: %v", ErrProviderError, err)
	}
	return p.store(keyName, owner, SchemeEd25519, []byte(pub), priv)
}

// GenerateBLS12381 creates a new BLS12-381 key named keyName, activates
// it, and persists the store. Single-signer only: this provider never
// aggregates signatures across keys.
func (p *SoftwareProvider) GenerateBLS12381(keyName, owner string) (KID, error) {
	priv, pub, err := blsGenerateKeyPair()
	if err != nil {
		return "", fmt.Errorf("%w: generate bls key: %v", ErrProviderError, err)
	}
	return p.store(keyName, owner, SchemeBLS12381, pub.Bytes(), priv.Bytes())
}

func (p *SoftwareProvider) store(keyName, owner string, scheme Scheme, pubBytes, privBytes []byte) (KID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kid := DeriveKID(pubBytes, softwareProviderID, keyName)
	fp := sha256.Sum256(pubBytes)
	p.data.Keys[kid] = storedKey{
		Metadata: Metadata{
			KID:         kid,
			ProviderID:  softwareProviderID,
			KeyName:     keyName,
			Scheme:      scheme,
			Status:      StatusActive,
			Owner:       owner,
			Fingerprint: "sha256:" + hex.EncodeToString(fp[:]),
		},
		PrivateKey: hex.EncodeToString(privBytes),
	}
	p.data.ActiveKID = kid

	if err := p.save(); err != nil {
		return "", err
	}
	return kid, nil
}

// CurrentKID implements Provider.
func (p *SoftwareProvider) CurrentKID() (KID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data.ActiveKID == "" {
		return "", fmt.Errorf("%w: no active key", ErrNotFound)
	}
	return p.data.ActiveKID, nil
}

func (p *SoftwareProvider) resolve(kid KID) (storedKey, error) {
	if kid == "" {
		kid = p.data.ActiveKID
	}
	rec, ok := p.data.Keys[kid]
	if !ok {
		return storedKey{}, wrapNotFound(kid)
	}
	return rec, nil
}

// Sign implements Provider, dispatching on the key's recorded scheme.
func (p *SoftwareProvider) Sign(kid KID, msg []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, err := p.resolve(kid)
	if err != nil {
		return nil, err
	}
	privBytes, err := hex.DecodeString(rec.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: decode stored private key: %v", ErrSignatureError, err)
	}

	switch rec.Metadata.Scheme {
	case SchemeEd25519:
		if len(privBytes) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("%w: malformed ed25519 key", ErrSignatureError)
		}
		return ed25519.Sign(ed25519.PrivateKey(privBytes), msg), nil
	case SchemeBLS12381:
		sk, err := blsPrivateKeyFromBytes(privBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: load bls key: %v", ErrSignatureError, err)
		}
		return sk.Sign(msg).Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: unknown scheme %q", ErrSignatureError, rec.Metadata.Scheme)
	}
}

// PublicKey implements Provider.
func (p *SoftwareProvider) PublicKey(kid KID) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, err := p.resolve(kid)
	if err != nil {
		return nil, err
	}
	privBytes, err := hex.DecodeString(rec.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: decode stored private key: %v", ErrProviderError, err)
	}

	switch rec.Metadata.Scheme {
	case SchemeEd25519:
		if len(privBytes) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("%w: malformed ed25519 key", ErrProviderError)
		}
		pub := ed25519.PrivateKey(privBytes).Public().(ed25519.PublicKey)
		return []byte(pub), nil
	case SchemeBLS12381:
		sk, err := blsPrivateKeyFromBytes(privBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: load bls key: %v", ErrProviderError, err)
		}
		return sk.PublicKey().Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: unknown scheme %q", ErrProviderError, rec.Metadata.Scheme)
	}
}

// ListKIDs implements Provider.
func (p *SoftwareProvider) ListKIDs() ([]KID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]KID, 0, len(p.data.Keys))
	for kid := range p.data.Keys {
		out = append(out, kid)
	}
	return out, nil
}

// Metadata implements Provider.
func (p *SoftwareProvider) Metadata(kid KID) (Metadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, err := p.resolve(kid)
	if err != nil {
		return Metadata{}, err
	}
	return rec.Metadata, nil
}

// SetStatus transitions a key's lifecycle status and persists the change.
func (p *SoftwareProvider) SetStatus(kid KID, status Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.data.Keys[kid]
	if !ok {
		return wrapNotFound(kid)
	}
	rec.Metadata.Status = status
	p.data.Keys[kid] = rec
	return p.save()
}

// Verify checks sig against msg under kid's recorded scheme and public
// key. It does not consult key status: callers enforce "active key only"
// policy themselves at the point they choose to trust a signature.
func (p *SoftwareProvider) Verify(kid KID, msg, sig []byte) (bool, error) {
	p.mu.Lock()
	rec, err := p.resolve(kid)
	p.mu.Unlock()
	if err != nil {
		return false, err
	}
	pubBytes, err := p.PublicKey(kid)
	if err != nil {
		return false, err
	}

	switch rec.Metadata.Scheme {
	case SchemeEd25519:
		if len(pubBytes) != ed25519.PublicKeySize {
			return false, fmt.Errorf("%w: malformed ed25519 public key", ErrSignatureError)
		}
		return ed25519.Verify(ed25519.PublicKey(pubBytes), msg, sig), nil
	case SchemeBLS12381:
		pub, err := blsPublicKeyFromBytes(pubBytes)
		if err != nil {
			return false, fmt.Errorf("%w: decode bls public key: %v", ErrSignatureError, err)
		}
		s, err := blsSignatureFromBytes(sig)
		if err != nil {
			return false, fmt.Errorf("%w: decode bls signature: %v", ErrSignatureError, err)
		}
		return pub.Verify(s, msg), nil
	default:
		return false, fmt.Errorf("%w: unknown scheme %q", ErrSignatureError, rec.Metadata.Scheme)
	}
}

var _ Provider = (*SoftwareProvider)(nil)
