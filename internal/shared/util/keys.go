package util

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
)

// HashUserKey returns a path-safe identifier for a username. Phone-number
// usernames never appear in object keys.
func HashUserKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ObjectKey builds the slash-separated storage key "<owner hash>/<random>_<name>"
// used by every object store backend.
func ObjectKey(owner, fileName string) (string, error) {
	name, err := SanitizeFileName(fileName)
	if err != nil {
		return "", fmt.Errorf("sanitize file name: %w", err)
	}
	return path.Join(HashUserKey(owner), RandomID()+"_"+name), nil
}
