// Package storetest opens private in-memory databases for tests.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/capitalize-ai/persona-chat/internal/store"
)

// New returns a migrated store backed by an in-memory SQLite database that no other
// test shares.
func New(t *testing.T) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	s, err := store.Open(context.Background(), store.Config{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
