package testutil

import (
	"database/sql"
	"os"
	"testing"

	"github.com/xxxsen/mtutor/internal/config"
	"github.com/xxxsen/mtutor/internal/db"
)

// OpenTestDB connects to the postgres named by TEST_DB_HOST and applies migrations.
// Tests are skipped when it is not set.
func OpenTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	conn, err := db.Open(config.DatabaseConfig{
		Host:     host,
		Port:     5432,
		User:     "mtutor",
		Password: "mtutor_pass",
		DBName:   "mtutor_test",
		SSLMode:  "disable",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	for _, table := range []string{"fragments", "documents", "rate_windows", "embedding_cache"} {
		if _, err := conn.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("reset %s: %v", table, err)
		}
	}
	return conn, func() {
		_ = conn.Close()
	}
}
