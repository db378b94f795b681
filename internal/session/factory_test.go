package session

import (
	"fmt"
	"testing"

	"okr-go/internal/config"
	"okr-go/internal/encryption"
)

func TestNewStoreFromConfig(t *testing.T) {
	items := newSQLiteItems(t)
	sealer := encryption.NewTestSealer()

	tests := []struct {
		name    string
		cfg     config.SessionConfig
		wantErr bool
		want    string
	}{
		{name: "file", cfg: config.SessionConfig{Type: "file", Path: "/tmp/s.json"}, want: "*session.FileStore"},
		{name: "file without path", cfg: config.SessionConfig{Type: "file"}, wantErr: true},
		{name: "age", cfg: config.SessionConfig{Type: "age", Path: "/tmp/s.age"}, want: "*session.SealedStore"},
		{name: "sqlite", cfg: config.SessionConfig{Type: "sqlite"}, want: "*session.ItemStoreAdapter"},
		{name: "memory", cfg: config.SessionConfig{Type: "memory"}, want: "*session.MemoryStore"},
		{name: "unknown", cfg: config.SessionConfig{Type: "cookie"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewStoreFromConfig(tt.cfg, sealer, items)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewStoreFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if typ := typeName(got); typ != tt.want {
				t.Errorf("NewStoreFromConfig() = %s, want %s", typ, tt.want)
			}
		})
	}

	t.Run("age without sealer", func(t *testing.T) {
		if _, err := NewStoreFromConfig(config.SessionConfig{Type: "age", Path: "/tmp/s.age"}, nil, nil); err == nil {
			t.Error("expected error without sealer")
		}
	})

	t.Run("sqlite without database", func(t *testing.T) {
		if _, err := NewStoreFromConfig(config.SessionConfig{Type: "sqlite"}, nil, nil); err == nil {
			t.Error("expected error without database")
		}
	})
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
