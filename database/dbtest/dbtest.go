// Package dbtest opens throwaway stores for tests in other packages.
package dbtest

import (
	"fmt"
	"net/url"
	"testing"

	"github.com/chxlky/trello-webhook-panel/database"
)

// NewStore returns a store over a shared in-memory sqlite database named after the test.
func NewStore(t testing.TB) *database.Store {
	t.Helper()

	db, err := database.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", url.PathEscape(t.Name())))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("test db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	store := database.NewStore(db)
	t.Cleanup(func() { _ = store.Close() })
	return store
}
