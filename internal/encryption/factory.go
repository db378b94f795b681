package encryption

import (
	"fmt"

	"okr-go/internal/config"
	"okr-go/internal/okr"
)

// NewSealerFromConfig creates the Sealer used by the session store, or nil
// when the configured store keeps the record in plaintext.
func NewSealerFromConfig(cfg config.SessionConfig) (okr.Sealer, error) {
	switch cfg.Type {
	case "age":
		if cfg.IdentityPath == "" {
			return nil, fmt.Errorf("session type age requires identity_path")
		}
		return NewAgeSealer(cfg.IdentityPath), nil
	case "test":
		return NewTestSealer(), nil
	case "file", "sqlite", "memory", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown session type: %q", cfg.Type)
	}
}
