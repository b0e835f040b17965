// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package store

import (
	"errors"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinvent/pinvent/pkg/errutil"
)

// fakeMigrate implements migrateIface.
type fakeMigrate struct {
	err        error
	version    uint
	dirty      bool
	versionErr error
	closeSrc   error
	closeDB    error
	steps      int
	forced     int
}

func (f *fakeMigrate) Up() error   { return f.err }
func (f *fakeMigrate) Down() error { return f.err }
func (f *fakeMigrate) Steps(n int) error {
	f.steps = n
	return f.err
}
func (f *fakeMigrate) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }
func (f *fakeMigrate) Force(v int) error {
	f.forced = v
	return f.err
}
func (f *fakeMigrate) Close() (error, error) { return f.closeSrc, f.closeDB }

func TestNewMigrator_InvalidURL(t *testing.T) {
	_, err := NewMigrator("badscheme://localhost:5432/testdb")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/shop", migrateURL("postgres://u:p@db:5432/shop"))
	assert.Equal(t, "pgx5://db/shop", migrateURL("postgresql://db/shop"))
	assert.Equal(t, "pgx5://db/shop", migrateURL("pgx5://db/shop"))
}

func TestMigrator_Operations(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name     string
		err      error
		run      func(*Migrator) error
		wantCode string
	}{
		{"up", nil, (*Migrator).Up, ""},
		{"up no change", migrate.ErrNoChange, (*Migrator).Up, ""},
		{"up error", boom, (*Migrator).Up, "MIGRATION_UP_FAILED"},
		{"down", nil, (*Migrator).Down, ""},
		{"down no change", migrate.ErrNoChange, (*Migrator).Down, ""},
		{"down error", boom, (*Migrator).Down, "MIGRATION_DOWN_FAILED"},
		{"steps no change", migrate.ErrNoChange, func(m *Migrator) error { return m.Steps(1) }, ""},
		{"steps error", boom, func(m *Migrator) error { return m.Steps(-1) }, "MIGRATION_STEPS_FAILED"},
		{"force", nil, func(m *Migrator) error { return m.Force(2) }, ""},
		{"force error", boom, func(m *Migrator) error { return m.Force(2) }, "MIGRATION_FORCE_FAILED"},
		{"force negative", nil, func(m *Migrator) error { return m.Force(-1) }, "INVALID_VERSION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Migrator{m: &fakeMigrate{err: tt.err}}
			err := tt.run(m)
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestMigrator_StepsAndForcePassThrough(t *testing.T) {
	f := &fakeMigrate{}
	m := &Migrator{m: f}

	require.NoError(t, m.Steps(-2))
	assert.Equal(t, -2, f.steps)
	require.NoError(t, m.Force(1))
	assert.Equal(t, 1, f.forced)
}

func TestMigrator_Version(t *testing.T) {
	m := &Migrator{m: &fakeMigrate{version: 2, dirty: true}}
	v, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.True(t, dirty)

	m = &Migrator{m: &fakeMigrate{versionErr: migrate.ErrNilVersion}}
	v, dirty, err = m.Version()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	m = &Migrator{m: &fakeMigrate{versionErr: errors.New("db gone")}}
	_, _, err = m.Version()
	errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
}

func TestMigrator_Close(t *testing.T) {
	src, db := errors.New("src"), errors.New("db")

	require.NoError(t, (&Migrator{m: &fakeMigrate{}}).Close())

	err := (&Migrator{m: &fakeMigrate{closeSrc: src}}).Close()
	errutil.AssertErrorContext(t, err, "component", "source")

	err = (&Migrator{m: &fakeMigrate{closeDB: db}}).Close()
	errutil.AssertErrorContext(t, err, "component", "database")

	err = (&Migrator{m: &fakeMigrate{closeSrc: src, closeDB: db}}).Close()
	errutil.AssertErrorCode(t, err, "MIGRATION_CLOSE_FAILED")
	errutil.AssertErrorContext(t, err, "component", "both")
	assert.Contains(t, err.Error(), "source: src; database: db")
}

func TestMigrator_Status(t *testing.T) {
	all, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, all)

	tests := []struct {
		name        string
		version     uint
		wantApplied int
	}{
		{"fresh", 0, 0},
		{"first applied", 1, 1},
		{"latest", all[len(all)-1].Version, len(all)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Migrator{m: &fakeMigrate{version: tt.version}}
			applied, pending, err := m.Status()
			require.NoError(t, err)
			assert.Len(t, applied, tt.wantApplied)
			assert.Len(t, pending, len(all)-tt.wantApplied)
		})
	}

	m := &Migrator{m: &fakeMigrate{versionErr: errors.New("db gone")}}
	_, _, err = m.Status()
	require.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		assert.Regexp(t, pattern, name)
		if base, ok := strings.CutSuffix(name, ".up.sql"); ok {
			ups[base] = true
		} else if base, ok := strings.CutSuffix(name, ".down.sql"); ok {
			downs[base] = true
		}
	}
	assert.Equal(t, ups, downs, "every up migration needs a down migration")

	all, err := Migrations()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, Migration{Version: 1, Name: "000001_create_users"}, all[0])
	assert.Equal(t, Migration{Version: 2, Name: "000002_create_reset_tokens"}, all[1])
}

func TestListMigrations_SkipsStrayFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"m/000010_later.up.sql":    {},
		"m/000002_second.up.sql":   {},
		"m/000002_second.down.sql": {},
		"m/README.md":              {},
		"m/notes.up.sql":           {},
		"m/.gitkeep":               {},
	}
	got, err := listMigrations(fsys, "m")
	require.NoError(t, err)
	assert.Equal(t, []Migration{
		{Version: 2, Name: "000002_second"},
		{Version: 10, Name: "000010_later"},
	}, got)

	_, err = listMigrations(fsys, "missing")
	errutil.AssertErrorCode(t, err, "MIGRATION_LIST_FAILED")
}

func TestMigrationName(t *testing.T) {
	name, err := MigrationName(2)
	require.NoError(t, err)
	assert.Equal(t, "000002_create_reset_tokens", name)

	name, err = MigrationName(999)
	require.NoError(t, err)
	assert.Empty(t, name)
}
