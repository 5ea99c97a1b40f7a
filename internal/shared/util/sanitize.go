package util

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxFileNameBytes = 180

var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName makes an uploaded file name safe for object keys. Bangla
// letters are kept, path separators become underscores, control characters
// are dropped and whitespace runs collapse to one space. Long names are cut on
// a rune boundary.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	var b strings.Builder
	space := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r) || r == utf8.RuneError:
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		if r == '/' || r == '\\' {
			r = '_'
		}
		b.WriteRune(r)
	}
	s := b.String()
	for len(s) > maxFileNameBytes {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	if strings.Trim(s, "_. ") == "" {
		return "", ErrInvalidFileName
	}
	return s, nil
}
