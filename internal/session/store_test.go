package session

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"okr-go/internal/database"
	"okr-go/internal/encryption"
	"okr-go/internal/okr"
)

var alice = okr.Session{Token: "tok-1", FirstName: "Alice", LastName: "Silva", Email: "alice@example.com"}

func newSQLiteItems(t *testing.T) *database.SQLiteDatabase {
	t.Helper()
	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteDatabase() error = %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) okr.SessionStore{
		"file": func(t *testing.T) okr.SessionStore {
			return NewFileStore(filepath.Join(t.TempDir(), "session.json"))
		},
		"sealed": func(t *testing.T) okr.SessionStore {
			return NewSealedStore(filepath.Join(t.TempDir(), "session.age"), encryption.NewTestSealer())
		},
		"sqlite": func(t *testing.T) okr.SessionStore {
			return NewItemStoreAdapter(newSQLiteItems(t))
		},
		"memory": func(t *testing.T) okr.SessionStore {
			return NewMemoryStore()
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			t.Run("empty store returns zero session", func(t *testing.T) {
				s := newStore(t)
				got, err := s.Get()
				if err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				if got != (okr.Session{}) {
					t.Errorf("Get() = %+v, want zero session", got)
				}
			})

			t.Run("set then get", func(t *testing.T) {
				s := newStore(t)
				if err := s.Set(alice); err != nil {
					t.Fatalf("Set() error = %v", err)
				}
				got, err := s.Get()
				if err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				if got != alice {
					t.Errorf("Get() = %+v, want %+v", got, alice)
				}
			})

			t.Run("remove clears and is idempotent", func(t *testing.T) {
				s := newStore(t)
				if err := s.Set(alice); err != nil {
					t.Fatalf("Set() error = %v", err)
				}
				for i := 0; i < 2; i++ {
					if err := s.Remove(); err != nil {
						t.Fatalf("Remove() #%d error = %v", i+1, err)
					}
				}
				got, err := s.Get()
				if err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				if got.IsAuthenticated() {
					t.Errorf("Get() after Remove() = %+v, want logged out", got)
				}
			})
		})
	}
}

func TestFileStore_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	s := NewFileStore(path)
	if err := s.Set(alice); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("session file mode = %o, want 0600", perm)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the session file", len(entries))
	}
}

func TestFileStore_CorruptRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path).Get(); err == nil {
		t.Error("Get() on corrupt record should return error")
	}
}

func TestSealedStore_CiphertextAtRest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.age")
	s := NewSealedStore(path, encryption.NewAgeSealer(filepath.Join(t.TempDir(), "session.key")))

	if err := s.Set(alice); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, []byte(alice.Token)) || bytes.Contains(raw, []byte(alice.Email)) {
		t.Error("sealed session file contains plaintext fields")
	}

	got, err := s.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != alice {
		t.Errorf("Get() = %+v, want %+v", got, alice)
	}
}

func TestSQLiteStore_UsesSessionItem(t *testing.T) {
	db := newSQLiteItems(t)
	if err := NewItemStoreAdapter(db).Set(alice); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, found, err := db.GetItem(ItemKey); err != nil || !found {
		t.Errorf("GetItem(%q) = found %v, err %v", ItemKey, found, err)
	}
}
