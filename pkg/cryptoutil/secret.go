package cryptoutil

import (
	"runtime"
)

// Zeroize overwrites b with zeros. The KeepAlive barrier stops the compiler
// from treating the writes as dead stores.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// Secret owns a transient byte buffer (a session key, a decrypted artifact)
// and guarantees it is zeroized exactly once. Callers that hand a Secret to
// another component transfer ownership of the Close call with it.
type Secret struct {
	buf    []byte
	closed bool
}

// NewSecret wraps buf. The Secret takes ownership; the caller must not
// retain its own reference.
func NewSecret(buf []byte) *Secret {
	return &Secret{buf: buf}
}

// Bytes exposes the underlying buffer. The slice is only valid until Close.
func (s *Secret) Bytes() []byte {
	if s.closed {
		return nil
	}
	return s.buf
}

// Len returns the buffer length, zero after Close
func (s *Secret) Len() int {
	if s.closed {
		return 0
	}
	return len(s.buf)
}

// Close zeroizes the buffer. Safe to call more than once.
func (s *Secret) Close() {
	if s.closed {
		return
	}
	Zeroize(s.buf)
	s.buf = nil
	s.closed = true
}
