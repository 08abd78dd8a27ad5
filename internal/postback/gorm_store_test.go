package postback

import (
	"path/filepath"
	"testing"
)

func TestGormStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		store, err := NewGormStore("sqlite", filepath.Join(t.TempDir(), "postbacks.db"))
		if err != nil {
			t.Fatalf("open gorm store: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestGormStoreRejectsUnknownDriver(t *testing.T) {
	if _, err := NewGormStore("oracle", "dsn"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}
