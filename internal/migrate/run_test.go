package migrate

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_SortedSQLOnly(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"migrations/0002_history.sql": {Data: []byte("SELECT 2;")},
		"migrations/0001_init.sql":    {Data: []byte("SELECT 1;")},
		"migrations/README.md":        {Data: []byte("notes")},
		"migrations/archive/0000.sql": {Data: []byte("SELECT 0;")},
	}

	files, err := migrationFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init.sql", "0002_history.sql"}, files)
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	t.Parallel()

	files, err := migrationFiles(migrationsFS)
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "0001_init.sql", files[0])
}
