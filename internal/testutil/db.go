// AngelaMos | 2026
// db.go

package testutil

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/imagegate/internal/core"
	"github.com/carterperez-dev/templates/imagegate/internal/migrations"
)

// NewDB returns a migrated SQLite database in a per-test temp file.
func NewDB(t *testing.T) *core.Database {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "imagegate.db") +
		"?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate&_foreign_keys=on"

	db, err := sqlx.Open(core.DriverSQLite, dsn)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close() //nolint:errcheck // test cleanup
	})

	require.NoError(t, migrations.Up(db.DB, core.DriverSQLite))

	return &core.Database{DB: db, Driver: core.DriverSQLite}
}
