package uniuri

import (
	"crypto/rand"
)

const (
	// StdLen gives ~95 bits of entropy with StdChars.
	StdLen = 16
	// TokenLen is used for lease holder tokens.
	TokenLen = 24
)

// StdChars is the alphabet of generated strings.
var StdChars = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789") //nolint:gochecknoglobals

// New returns a random string of StdLen characters.
func New() string {
	return NewLen(StdLen)
}

// NewLen returns a random string of length characters from StdChars.
// Bytes that would bias the modulo are rejected.
func NewLen(length int) string {
	if length <= 0 {
		return ""
	}

	limit := byte(256 - 256%len(StdChars)) //nolint:mnd
	out := make([]byte, 0, length)
	buf := make([]byte, length+length/2+1) //nolint:mnd

	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			panic("uniuri: error reading random bytes: " + err.Error())
		}

		for _, b := range buf {
			if b >= limit {
				continue
			}

			out = append(out, StdChars[int(b)%len(StdChars)])
			if len(out) == length {
				break
			}
		}
	}

	return string(out)
}
