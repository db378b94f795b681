package encryption

import (
	"bytes"
	"fmt"
	"io"

	"okr-go/internal/okr"
)

// testHeader is prepended by TestSealer so sealed output differs from the
// plaintext while staying deterministic.
var testHeader = []byte("OKRSEAL\x00")

// TestSealer is a deterministic okr.Sealer for tests. It prepends a fixed
// header on Seal and strips it on Open; no cryptography is involved.
type TestSealer struct {
	setupCalled bool
}

var _ okr.Sealer = (*TestSealer)(nil)

// NewTestSealer returns an unconfigured TestSealer.
func NewTestSealer() *TestSealer {
	return &TestSealer{}
}

func (s *TestSealer) Setup() error {
	s.setupCalled = true
	return nil
}

func (s *TestSealer) Seal(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (s *TestSealer) Open(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("invalid test seal header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (s *TestSealer) IsConfigured() bool {
	return true
}
