package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, ValidateFS(Embedded(), embedDir))
}

func TestEmbeddedMigrationsCoverSchema(t *testing.T) {
	var all strings.Builder
	err := fs.WalkDir(Embedded(), embedDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		b, err := fs.ReadFile(Embedded(), p)
		if err != nil {
			return err
		}
		all.Write(b)
		return nil
	})
	require.NoError(t, err)

	content := all.String()
	for _, stmt := range []string{
		"CREATE TABLE IF NOT EXISTS users",
		"CREATE TABLE IF NOT EXISTS shops",
		"CREATE TABLE IF NOT EXISTS product_infos",
		"CREATE TABLE IF NOT EXISTS product_parameters",
		"CREATE TABLE IF NOT EXISTS orders",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_one_basket ON orders (user_id) WHERE state = 'basket'",
		"CREATE TABLE IF NOT EXISTS order_items",
		"CREATE TABLE IF NOT EXISTS tasks",
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"CREATE TABLE IF NOT EXISTS outbox_dlq",
	} {
		require.Contains(t, content, stmt)
	}
}

func TestValidateFSRejectsBadFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {
			"m/1_create.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"missing down": {
			"m/20260101000000_create.sql": {Data: []byte("-- +goose Up\n")},
		},
		"duplicate version": {
			"m/20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"m/20260101000000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"empty": {
			"m/readme.txt": {Data: []byte("nothing")},
		},
		"down before up": {
			"m/20260101000000_create.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")},
		},
		"open statement block": {
			"m/20260101000000_create.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, ValidateFS(fsys, "m"))
		})
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Shop Index!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_shop_index.sql"))
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "!!!")
	require.Error(t, err)
}

func TestCreateSQLMigrationBumpsVersionPastExisting(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	first, err := createSQLMigration(dir, "create_shop_ratings", now)
	require.NoError(t, err)
	second, err := createSQLMigration(dir, "add_rating_index", now)
	require.NoError(t, err)

	require.Equal(t, "20260501100000_create_shop_ratings.sql", filepath.Base(first))
	require.Equal(t, "20260501100001_add_rating_index.sql", filepath.Base(second))
	require.NoError(t, ValidateDir(dir))

	body, err := os.ReadFile(first)
	require.NoError(t, err)
	require.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS shop_ratings")
	require.Contains(t, string(body), "DROP TABLE IF EXISTS shop_ratings;")
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("20260105090400")
	require.NoError(t, err)
	require.Equal(t, int64(20260105090400), v)

	for _, bad := range []string{"", "2026", "2026010509040x", "-2026010509040"} {
		_, err := parseVersion(bad)
		require.Error(t, err, bad)
	}
}

func TestMigratorRequiresSource(t *testing.T) {
	_, err := New(nil, Embedded())
	require.Error(t, err)

	_, err = FromDir(nil, "")
	require.Error(t, err)
}
