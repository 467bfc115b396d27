package main

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func validMigrationFS() fstest.MapFS {
	return fstest.MapFS{
		"001_initial.up.sql":   &fstest.MapFile{Data: []byte("CREATE TABLE scouts (id TEXT PRIMARY KEY);")},
		"001_initial.down.sql": &fstest.MapFile{Data: []byte("DROP TABLE scouts;")},
		"002_events.up.sql":    &fstest.MapFile{Data: []byte("CREATE TABLE scout_events (id TEXT PRIMARY KEY);")},
		"002_events.down.sql":  &fstest.MapFile{Data: []byte("DROP TABLE scout_events;")},
	}
}

func TestListEmbeddedMigrationsFiltersNonSQL(t *testing.T) {
	fsys := validMigrationFS()
	fsys["README.md"] = &fstest.MapFile{Data: []byte("# docs")}
	fsys["script.sh"] = &fstest.MapFile{Data: []byte("#!/bin/bash")}

	em := NewEmbeddedMigration(fsys)

	files, err := em.ListEmbeddedMigrations()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{
		"001_initial.up.sql", "001_initial.down.sql",
		"002_events.up.sql", "002_events.down.sql",
	}, files)
}

func TestValidateEmbeddedMigrationsPasses(t *testing.T) {
	em := NewEmbeddedMigration(validMigrationFS())
	require.NoError(t, em.ValidateEmbeddedMigrations())
}

func TestListEmbeddedMigrationsExcludesBadFilename(t *testing.T) {
	fsys := validMigrationFS()
	fsys["bad_name.sql"] = &fstest.MapFile{Data: []byte("-- nope")}

	em := NewEmbeddedMigration(fsys)

	files, err := em.ListEmbeddedMigrations()
	require.NoError(t, err)
	require.NotContains(t, files, "bad_name.sql")
}

func TestValidateEmbeddedMigrationsRejectsOrphanedDown(t *testing.T) {
	fsys := fstest.MapFS{
		"001_initial.down.sql": &fstest.MapFile{Data: []byte("DROP TABLE scouts;")},
	}

	em := NewEmbeddedMigration(fsys)
	err := em.ValidateEmbeddedMigrations()
	require.Error(t, err)
}

func TestValidateEmbeddedMigrationsRejectsSequenceGap(t *testing.T) {
	fsys := fstest.MapFS{
		"001_initial.up.sql":   &fstest.MapFile{Data: []byte("CREATE TABLE a (id INT);")},
		"001_initial.down.sql": &fstest.MapFile{Data: []byte("DROP TABLE a;")},
		"003_third.up.sql":     &fstest.MapFile{Data: []byte("CREATE TABLE c (id INT);")},
		"003_third.down.sql":   &fstest.MapFile{Data: []byte("DROP TABLE c;")},
	}

	em := NewEmbeddedMigration(fsys)
	err := em.ValidateEmbeddedMigrations()
	require.Error(t, err)
}

func TestValidateEmbeddedMigrationsRejectsEmptyFS(t *testing.T) {
	em := NewEmbeddedMigration(fstest.MapFS{})
	err := em.ValidateEmbeddedMigrations()
	require.Error(t, err)
}

func TestValidateEmbeddedMigrationsDetectsTamperedContent(t *testing.T) {
	fsys := validMigrationFS()
	em := NewEmbeddedMigration(fsys)

	require.NoError(t, em.ValidateEmbeddedMigrations())

	fsys["001_initial.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE scouts (id TEXT PRIMARY KEY, extra TEXT);")}

	err := em.ValidateEmbeddedMigrations()
	require.Error(t, err)
}

func TestGetEmbeddedMigrationContentReturnsExactBytes(t *testing.T) {
	em := NewEmbeddedMigration(validMigrationFS())

	content, err := em.GetEmbeddedMigrationContent("001_initial.up.sql")
	require.NoError(t, err)
	require.Equal(t, "CREATE TABLE scouts (id TEXT PRIMARY KEY);", string(content))
}

func TestGetEmbeddedMigrationContentMissingFile(t *testing.T) {
	em := NewEmbeddedMigration(validMigrationFS())

	_, err := em.GetEmbeddedMigrationContent("999_missing.up.sql")
	require.Error(t, err)
}

func TestNewEmbeddedMigrationDefaultsToRealEmbedWhenNil(t *testing.T) {
	em := NewEmbeddedMigration(nil)
	require.NoError(t, em.ValidateEmbeddedMigrations())

	files, err := em.ListEmbeddedMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, files)
}
