package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	. "github.com/lovelive-bluebird/bluebird/utils/log"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const schemaVersionTable = "schema_version"

var (
	migrationFileRe = regexp.MustCompile(`^(\d+)_[\w-]+\.sql$`)
	revisionRe      = regexp.MustCompile(`(?m)^--\s*revision:\s*([0-9a-zA-Z_]+)\s*$`)
)

// ErrSchemaNotInitialized means the version table does not exist yet, the
// database was never migrated.
var ErrSchemaNotInitialized = errors.New("schema not initialized: run migrate-db")

type SchemaMismatchError struct {
	Expected string
	Actual   string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema version mismatch: expected %s, database is at %q", e.Expected, e.Actual)
}

// Migration is one embedded, ordered schema change.
type Migration struct {
	Sequence int
	Name     string
	Revision string
	SQL      string
}

// Migrations returns the embedded migrations ordered by sequence number.
func Migrations() ([]Migration, error) {
	return loadMigrations(migrationFS)
}

func loadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	res := []Migration{}
	seen := map[int]string{}
	for _, path := range entries {
		name := path[len("migrations/"):]
		m := migrationFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, errors.Errorf("unexpected migration file name %q", name)
		}
		seq, _ := strconv.Atoi(m[1])
		if other, ok := seen[seq]; ok {
			return nil, errors.Errorf("migrations %q and %q share sequence %d", other, name, seq)
		}
		seen[seq] = name

		body, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, err
		}
		rev := revisionRe.FindSubmatch(body)
		if rev == nil {
			return nil, errors.Errorf("migration %q has no revision header", name)
		}
		res = append(res, Migration{Sequence: seq, Name: name, Revision: string(rev[1]), SQL: string(body)})
	}
	if len(res) == 0 {
		return nil, errors.New("no migrations embedded")
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Sequence < res[j].Sequence })
	return res, nil
}

// ExpectedSchemaVersion is the revision of the highest-numbered migration.
func ExpectedSchemaVersion() (string, error) {
	migrations, err := Migrations()
	if err != nil {
		return "", err
	}
	return migrations[len(migrations)-1].Revision, nil
}

const (
	schemaTableExistsSQL = `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = ?)`
	selectVersionSQL     = `SELECT version_num FROM schema_version LIMIT 1`
	createVersionSQL     = `CREATE TABLE IF NOT EXISTS schema_version (version_num VARCHAR(32) NOT NULL PRIMARY KEY)`
)

// CheckSchemaVersion fails unless the database is at ExpectedSchemaVersion.
// The webhook server refuses to start on any error from here.
func (s *Store) CheckSchemaVersion(ctx context.Context) error {
	expected, err := ExpectedSchemaVersion()
	if err != nil {
		return err
	}
	actual, err := s.currentVersion(ctx)
	if err != nil {
		return err
	}
	if actual != expected {
		return &SchemaMismatchError{Expected: expected, Actual: actual}
	}
	Log.WithField("schema_version", actual).Info("schema version verified")
	return nil
}

// currentVersion returns ErrSchemaNotInitialized when the version table is
// missing and "" when it is empty.
func (s *Store) currentVersion(ctx context.Context) (string, error) {
	var exists bool
	err := s.transaction(ctx, "check schema table", func(tx *gorm.DB) error {
		return tx.Raw(schemaTableExistsSQL, schemaVersionTable).Row().Scan(&exists)
	})
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrSchemaNotInitialized
	}

	var version string
	err = s.transaction(ctx, "read schema version", func(tx *gorm.DB) error {
		rows, err := tx.Raw(selectVersionSQL).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()
		if rows.Next() {
			if err := rows.Scan(&version); err != nil {
				return err
			}
		}
		return rows.Err()
	})
	return version, err
}

// Migrate applies every embedded migration newer than the recorded version,
// each in its own transaction together with the version bump.
func (s *Store) Migrate(ctx context.Context) (applied []string, err error) {
	migrations, err := Migrations()
	if err != nil {
		return nil, err
	}
	if err := s.transaction(ctx, "create schema table", func(tx *gorm.DB) error {
		return tx.Exec(createVersionSQL).Error
	}); err != nil {
		return nil, err
	}
	current, err := s.currentVersion(ctx)
	if err != nil {
		return nil, err
	}

	start := 0
	if current != "" {
		start = -1
		for i, m := range migrations {
			if m.Revision == current {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return nil, errors.Errorf("database revision %q is unknown to this build", current)
		}
	}

	applied = []string{}
	for _, m := range migrations[start:] {
		m := m
		err := s.transaction(ctx, "apply migration "+m.Name, func(tx *gorm.DB) error {
			if err := tx.Exec(m.SQL).Error; err != nil {
				return err
			}
			if err := tx.Exec("DELETE FROM schema_version").Error; err != nil {
				return err
			}
			return tx.Exec("INSERT INTO schema_version (version_num) VALUES (?)", m.Revision).Error
		})
		if err != nil {
			return applied, err
		}
		Log.WithFields(logrus.Fields{"migration": m.Name, "revision": m.Revision}).Info("migration applied")
		applied = append(applied, m.Revision)
	}
	return applied, nil
}
