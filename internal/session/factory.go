package session

import (
	"fmt"

	"okr-go/internal/config"
	"okr-go/internal/okr"
)

// NewStoreFromConfig creates the store selected by cfg.Type. sealer is
// required for "age" and items for "sqlite"; both may be nil otherwise.
func NewStoreFromConfig(cfg config.SessionConfig, sealer okr.Sealer, items ItemStore) (okr.SessionStore, error) {
	switch cfg.Type {
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("session type file requires path")
		}
		return NewFileStore(cfg.Path), nil
	case "age":
		if cfg.Path == "" {
			return nil, fmt.Errorf("session type age requires path")
		}
		if sealer == nil {
			return nil, fmt.Errorf("session type age requires a sealer")
		}
		return NewSealedStore(cfg.Path, sealer), nil
	case "sqlite":
		if items == nil {
			return nil, fmt.Errorf("session type sqlite requires the client database")
		}
		return NewItemStoreAdapter(items), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown session type: %q", cfg.Type)
	}
}
