package database

import (
	"fmt"
	"net/url"
	"testing"
)

// newTestStore opens a named shared in-memory database so each test gets its own schema.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", url.PathEscape(t.Name())))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("test db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	store := NewStore(db)
	t.Cleanup(func() { _ = store.Close() })
	return store
}
