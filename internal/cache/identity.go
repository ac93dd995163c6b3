package cache

import (
	"encoding/hex"
	"io"

	"lukechampine.com/blake3"
)

const identitySize = 32

// IdentityOf returns the content identity of everything read from r.
func IdentityOf(r io.Reader) (string, error) {
	w := NewIdentityWriter()
	if _, err := io.Copy(w, r); err != nil {
		return "", err
	}
	return w.ID(), nil
}

// IdentityWriter hashes bytes as they are written, so uploads can be
// identified while they are saved.
type IdentityWriter struct {
	h *blake3.Hasher
}

// NewIdentityWriter returns an empty IdentityWriter.
func NewIdentityWriter() *IdentityWriter {
	return &IdentityWriter{h: blake3.New(identitySize, nil)}
}

func (w *IdentityWriter) Write(p []byte) (int, error) {
	return w.h.Write(p)
}

// ID returns the hex digest of the bytes written so far.
func (w *IdentityWriter) ID() string {
	return hex.EncodeToString(w.h.Sum(nil))
}
