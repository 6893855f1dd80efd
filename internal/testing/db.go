// Package testing provides testing utilities and helpers for the portfolio service.
package testing

import (
	"path/filepath"
	"testing"

	"github.com/aristath/saxo-portfolio/internal/database"
)

// NewTestDB creates a migrated SQLite database in the test's temp directory.
// The connection is closed when the test finishes.
func NewTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "portfolio.db"),
		Name: "portfolio",
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database: %v", err)
		}
	})

	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}
