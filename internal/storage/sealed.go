// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package storage

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	saltSize  = 16
	nonceSize = 24

	// scrypt parameters recommended for interactive logins.
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// ErrSealBroken is returned when a sealed value cannot be opened, usually
// because the passphrase changed.
var ErrSealBroken = errors.New("storage: sealed value cannot be opened")

// SealedStore encrypts every value with a key derived from a passphrase
// before handing it to the wrapped store. Each value carries its own salt
// and nonce: base64(salt | nonce | secretbox).
type SealedStore struct {
	inner      Store
	passphrase []byte
}

// NewSealedStore wraps inner. An empty passphrase is rejected.
func NewSealedStore(inner Store, passphrase string) (*SealedStore, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("storage: sealed store needs a passphrase")
	}
	return &SealedStore{inner: inner, passphrase: []byte(passphrase)}, nil
}

func (s *SealedStore) Get(ctx context.Context, key string) (string, bool, error) {
	sealed, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	plain, err := s.open(sealed)
	if err != nil {
		return "", false, fmt.Errorf("storage open %q: %w", key, err)
	}
	return plain, true, nil
}

func (s *SealedStore) Set(ctx context.Context, key, value string) error {
	sealed, err := s.seal(value)
	if err != nil {
		return fmt.Errorf("storage seal %q: %w", key, err)
	}
	return s.inner.Set(ctx, key, sealed)
}

func (s *SealedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *SealedStore) seal(value string) (string, error) {
	var salt [saltSize]byte
	if _, err := io.ReadFull(rand.Reader, salt[:]); err != nil {
		return "", err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	key, err := s.deriveKey(salt[:])
	if err != nil {
		return "", err
	}

	out := make([]byte, 0, saltSize+nonceSize+len(value)+secretbox.Overhead)
	out = append(out, salt[:]...)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, []byte(value), &nonce, key)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *SealedStore) open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealBroken, err)
	}
	if len(raw) < saltSize+nonceSize+secretbox.Overhead {
		return "", ErrSealBroken
	}
	key, err := s.deriveKey(raw[:saltSize])
	if err != nil {
		return "", err
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[saltSize:saltSize+nonceSize])

	plain, ok := secretbox.Open(nil, raw[saltSize+nonceSize:], &nonce, key)
	if !ok {
		return "", ErrSealBroken
	}
	return string(plain), nil
}

func (s *SealedStore) deriveKey(salt []byte) (*[32]byte, error) {
	dk, err := scrypt.Key(s.passphrase, salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("scrypt: %w", err)
	}
	var key [32]byte
	copy(key[:], dk)
	return &key, nil
}
