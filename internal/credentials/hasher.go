package credentials

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnknownHasher is returned by New for an unsupported hasher name.
var ErrUnknownHasher = errors.New("unknown password hasher")

// Hasher turns a secret into a stored digest and checks candidates against it.
type Hasher interface {
	Name() string
	Digest(secret string) (string, error)
	Verify(secret, hash string) bool
}

// New returns the hasher registered under name ("sha256" or "bcrypt").
func New(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sha256":
		return SHA256{}, nil
	case "bcrypt":
		return Bcrypt{Cost: bcrypt.DefaultCost}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownHasher, name)
	}
}

// SHA256 digests secrets as lowercase hex SHA-256 of their UTF-8 bytes.
// Hashes stored by earlier deployments of the portal use this format.
type SHA256 struct{}

func (SHA256) Name() string { return "sha256" }

func (SHA256) Digest(secret string) (string, error) {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:]), nil
}

func (h SHA256) Verify(secret, hash string) bool {
	digest, _ := h.Digest(secret)
	return subtle.ConstantTimeCompare([]byte(digest), []byte(hash)) == 1
}

// Bcrypt is a salted, slow alternative. Digests differ on every call, so
// Verify must be used instead of comparing Digest output.
type Bcrypt struct {
	Cost int
}

func (Bcrypt) Name() string { return "bcrypt" }

func (b Bcrypt) Digest(secret string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(out), nil
}

func (Bcrypt) Verify(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
