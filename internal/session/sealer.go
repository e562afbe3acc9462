// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"golang.org/x/crypto/chacha20poly1305"
)

// SealKeySize is the length in bytes of a seal key.
const SealKeySize = chacha20poly1305.KeySize

const sealPrefix = "v1."

// ParseSealKey decodes a hex-encoded seal key.
func ParseSealKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, oops.Code("SEAL_KEY_INVALID").Wrap(err)
	}
	if len(key) != SealKeySize {
		return nil, oops.Code("SEAL_KEY_INVALID").
			With("length", len(key)).
			Errorf("seal key must be %d bytes, got %d", SealKeySize, len(key))
	}
	return key, nil
}

// SealedStore encrypts tokens with XChaCha20-Poly1305 before they reach the
// wrapped store. The record id is bound as additional data, so a sealed
// token copied to another row does not open.
type SealedStore struct {
	inner Store
	key   []byte
}

// NewSealedStore wraps inner with sealing under key.
func NewSealedStore(inner Store, key []byte) (*SealedStore, error) {
	if inner == nil {
		return nil, oops.Code("SEAL_STORE_INVALID").Errorf("inner store is required")
	}
	if len(key) != SealKeySize {
		return nil, oops.Code("SEAL_KEY_INVALID").
			With("length", len(key)).
			Errorf("seal key must be %d bytes, got %d", SealKeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &SealedStore{inner: inner, key: k}, nil
}

// Save implements Store.
func (s *SealedStore) Save(ctx context.Context, r *Record) error {
	sealed := *r
	var err error
	if sealed.AccessToken, err = s.seal(r.ID, r.AccessToken); err != nil {
		return err
	}
	if sealed.RefreshToken, err = s.seal(r.ID, r.RefreshToken); err != nil {
		return err
	}
	return s.inner.Save(ctx, &sealed)
}

// Load implements Store.
func (s *SealedStore) Load(ctx context.Context, id ulid.ULID) (*Record, error) {
	r, err := s.inner.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.AccessToken, err = s.open(id, r.AccessToken); err != nil {
		return nil, err
	}
	if r.RefreshToken, err = s.open(id, r.RefreshToken); err != nil {
		return nil, err
	}
	return r, nil
}

// Delete implements Store.
func (s *SealedStore) Delete(ctx context.Context, id ulid.ULID) error {
	return s.inner.Delete(ctx, id)
}

// DeleteExpired implements Store.
func (s *SealedStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.inner.DeleteExpired(ctx, cutoff)
}

func (s *SealedStore) seal(id ulid.ULID, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", oops.Code("SEAL_FAILED").Wrap(err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", oops.Code("SEAL_FAILED").With("operation", "generate nonce").Wrap(err)
	}
	out := aead.Seal(nonce, nonce, []byte(plaintext), id[:])
	return sealPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

func (s *SealedStore) open(id ulid.ULID, sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	encoded, ok := strings.CutPrefix(sealed, sealPrefix)
	if !ok {
		return "", oops.Code("SEAL_OPEN_FAILED").With("id", id.String()).Errorf("token is not sealed")
	}
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", oops.Code("SEAL_OPEN_FAILED").With("id", id.String()).Wrap(err)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", oops.Code("SEAL_OPEN_FAILED").Wrap(err)
	}
	if len(data) < aead.NonceSize() {
		return "", oops.Code("SEAL_OPEN_FAILED").With("id", id.String()).Errorf("sealed token too short")
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, id[:])
	if err != nil {
		return "", oops.Code("SEAL_OPEN_FAILED").With("id", id.String()).Wrap(err)
	}
	return string(plaintext), nil
}

var _ Store = (*SealedStore)(nil)
