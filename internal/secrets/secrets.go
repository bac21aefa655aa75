// Package secrets seals provider credentials so they can sit in env files and
// config overlays as "enc:<base64>" instead of plain text.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

const Prefix = "enc:"

var (
	ErrKeyRequired = errors.New("TUTOR_SECRETS_KEY is required to decrypt enc: credentials")
	errKeyLength   = errors.New("TUTOR_SECRETS_KEY must be 32 bytes or base64-encoded 32 bytes")
	errCiphertext  = errors.New("invalid encrypted secret")
)

var newGCM = cipher.NewGCM

func ParseKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, ErrKeyRequired
	}
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(decoded) != 32 {
		return nil, errKeyLength
	}
	return decoded, nil
}

func IsSealed(value string) bool {
	return strings.HasPrefix(value, Prefix)
}

// Seal encrypts plaintext and returns it in the "enc:" form accepted by Open.
func Seal(key []byte, plaintext string) (string, error) {
	aead, err := aeadFor(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the prefix are returned unchanged.
func Open(key []byte, value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	aead, err := aeadFor(key)
	if err != nil {
		return "", err
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errCiphertext, err)
	}
	if len(data) < aead.NonceSize() {
		return "", errCiphertext
	}
	plain, err := aead.Open(nil, data[:aead.NonceSize()], data[aead.NonceSize():], nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func aeadFor(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return newGCM(block)
}

// Resolver opens sealed credentials with a key parsed once at startup. A
// resolver without a key passes plain values through and rejects sealed ones.
type Resolver struct {
	key []byte
}

func NewResolver(rawKey string) (*Resolver, error) {
	if rawKey == "" {
		return &Resolver{}, nil
	}
	key, err := ParseKey(rawKey)
	if err != nil {
		return nil, err
	}
	return &Resolver{key: key}, nil
}

func (r *Resolver) Resolve(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if r.key == nil {
		return "", ErrKeyRequired
	}
	return Open(r.key, value)
}

// ResolveFields opens every named credential in place.
func (r *Resolver) ResolveFields(fields map[string]*string) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		target := fields[name]
		if target == nil {
			continue
		}
		plain, err := r.Resolve(*target)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", name, err)
		}
		*target = plain
	}
	return nil
}
