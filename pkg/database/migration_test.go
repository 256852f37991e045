package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMigration(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644))
}

func TestGetLatestVersion(t *testing.T) {
	t.Run("returns the highest up migration version", func(t *testing.T) {
		dir := t.TempDir()
		writeMigration(t, dir, "000001_create_canonical_entities.up.sql")
		writeMigration(t, dir, "000001_create_canonical_entities.down.sql")
		writeMigration(t, dir, "000005_create_product_entity_sets.up.sql")
		writeMigration(t, dir, "000003_create_shop_overrides.up.sql")

		latest, err := getLatestVersion(dir)
		require.NoError(t, err)
		assert.Equal(t, 5, latest)
	})

	t.Run("ignores files that are not migrations", func(t *testing.T) {
		dir := t.TempDir()
		writeMigration(t, dir, "000002_create_entity_mappings.up.sql")
		writeMigration(t, dir, "README.md")

		latest, err := getLatestVersion(dir)
		require.NoError(t, err)
		assert.Equal(t, 2, latest)
	})

	t.Run("errors on an empty folder", func(t *testing.T) {
		_, err := getLatestVersion(t.TempDir())
		require.Error(t, err)
	})
}

func TestResolveMigrationFolder(t *testing.T) {
	dir := t.TempDir()
	ms := NewMigrationService(nil, &MigrationConfig{MigrationFolderPath: dir})
	assert.Equal(t, dir, ms.resolveMigrationFolder())
}

func TestSQLBuilder(t *testing.T) {
	t.Run("on conflict do nothing", func(t *testing.T) {
		sb := NewInsertBuilder()
		sb.InsertInto("product_import_marks")
		sb.Cols("shop_id", "canonical_product_id")
		sb.Values("shop-1", "prod-1")
		sb.OnConflictDoNothing()

		query, args := sb.Build()
		assert.Contains(t, query, "INSERT INTO product_import_marks")
		assert.Contains(t, query, "ON CONFLICT DO NOTHING")
		assert.Equal(t, []interface{}{"shop-1", "prod-1"}, args)
	})

	t.Run("excluded column reference", func(t *testing.T) {
		sb := NewInsertBuilder()
		sb.InsertInto("entity_mappings")
		sb.Cols("id", "external_id")
		sb.Values("m-1", "ps-55")
		ub := sb.OnConflict("id")
		ub.Set(ub.Assign("external_id", Excluded("external_id")))

		query, _ := sb.Build()
		assert.Contains(t, query, "ON CONFLICT (id) DO UPDATE")
		assert.Contains(t, query, "EXCLUDED.external_id")
	})
}
