package cryptoutil

import (
	"crypto/rand"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"
)

// tokenBytes gives 192 bits of entropy, enough to make identifier
// collisions statistically impossible
const tokenBytes = 24

// NewToken returns an unguessable printable identifier
func NewToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", errors.Wrap(err, "sampling token")
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
