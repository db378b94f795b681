package encryption

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"okr-go/internal/okr"
)

// AgeSealer implements okr.Sealer using filippo.io/age with an X25519
// identity. The identity file is readable only by the owner; the sealed
// records themselves can be copied or backed up without exposing the token.
type AgeSealer struct {
	identityPath string
}

var _ okr.Sealer = (*AgeSealer)(nil)

// NewAgeSealer returns a sealer keyed by the identity at identityPath.
func NewAgeSealer(identityPath string) *AgeSealer {
	return &AgeSealer{identityPath: identityPath}
}

// Setup generates a new X25519 identity. It refuses to replace an existing
// one, since every record sealed under it would become unreadable.
func (s *AgeSealer) Setup() error {
	if s.IsConfigured() {
		return fmt.Errorf("identity already exists at %s", s.identityPath)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating identity: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.identityPath), 0700); err != nil {
		return fmt.Errorf("creating identity directory: %w", err)
	}

	f, err := os.OpenFile(s.identityPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating identity file: %w", err)
	}
	defer f.Close()

	contents := fmt.Sprintf("# public key: %s\n%s\n", identity.Recipient(), identity)
	if _, err := io.WriteString(f, contents); err != nil {
		return fmt.Errorf("writing identity: %w", err)
	}
	return nil
}

// Seal reads plaintext from r and writes age ciphertext to w.
func (s *AgeSealer) Seal(r io.Reader, w io.Writer) error {
	identity, err := s.loadIdentity()
	if err != nil {
		return err
	}

	encWriter, err := age.Encrypt(w, identity.Recipient())
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.Copy(encWriter, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}
	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

// Open reads age ciphertext from r and writes plaintext to w.
func (s *AgeSealer) Open(r io.Reader, w io.Writer) error {
	identity, err := s.loadIdentity()
	if err != nil {
		return err
	}

	decReader, err := age.Decrypt(r, identity)
	if err != nil {
		return fmt.Errorf("creating decrypted reader: %w", err)
	}
	if _, err := io.Copy(w, decReader); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}
	return nil
}

// IsConfigured reports whether the identity file exists.
func (s *AgeSealer) IsConfigured() bool {
	_, err := os.Stat(s.identityPath)
	return err == nil
}

func (s *AgeSealer) loadIdentity() (*age.X25519Identity, error) {
	data, err := os.ReadFile(s.identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading identity: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	for _, id := range identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return x, nil
		}
	}
	return nil, fmt.Errorf("no X25519 identity found in %s", s.identityPath)
}
