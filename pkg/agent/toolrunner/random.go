package toolrunner

import (
	"crypto/rand"
	"io"
)

// fillRandom fills b from the system CSPRNG
func fillRandom(b []byte) error {
	_, err := io.ReadFull(rand.Reader, b)
	return err
}
