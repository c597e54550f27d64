package migrations

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"bnla/internal/errors"
	"bnla/internal/logging"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

//go:embed *.sql
var files embed.FS

// Migrator applies the embedded schema migrations
type Migrator struct {
	db     *sqlx.DB
	fsys   fs.FS
	logger *zap.Logger
}

// NewMigrator creates a migrator over the embedded migration files
func NewMigrator(db *sqlx.DB, logger *zap.Logger) *Migrator {
	return &Migrator{db: db, fsys: files, logger: logging.OrNop(logger)}
}

// MigrationFile is one versioned migration
type MigrationFile struct {
	Version  string
	Name     string
	SQL      string
	Checksum string
}

// MigrationStatus is the state of one migration in the target database
type MigrationStatus struct {
	Version string
	Name    string
	Applied bool
}

// Up applies every pending migration in version order and returns the
// versions it applied. An applied migration whose file changed is an error.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	migrations, err := m.findMigrationFiles()
	if err != nil {
		return nil, err
	}

	var done []string
	for _, file := range migrations {
		if checksum, ok := applied[file.Version]; ok {
			if checksum != file.Checksum {
				return done, errors.DatabaseError(fmt.Sprintf("migration %s changed after it was applied", file.Version), nil)
			}
			continue
		}
		if err := m.applyMigration(ctx, file); err != nil {
			return done, errors.DatabaseError(fmt.Sprintf("failed to apply migration %s", file.Version), err)
		}
		m.logger.Info("applied migration", zap.String("version", file.Version), zap.String("name", file.Name))
		done = append(done, file.Version)
	}
	return done, nil
}

// Status lists every known migration and whether it has been applied
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	migrations, err := m.findMigrationFiles()
	if err != nil {
		return nil, err
	}
	out := make([]MigrationStatus, len(migrations))
	for i, file := range migrations {
		_, ok := applied[file.Version]
		out[i] = MigrationStatus{Version: file.Version, Name: file.Name, Applied: ok}
	}
	return out, nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return errors.DatabaseError("failed to create migrations table", err)
	}
	return nil
}

// appliedMigrations maps applied versions to their recorded checksum
func (m *Migrator) appliedMigrations(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Version  string `db:"version"`
		Checksum string `db:"checksum"`
	}
	if err := m.db.SelectContext(ctx, &rows, "SELECT version, checksum FROM schema_migrations"); err != nil {
		return nil, errors.DatabaseError("failed to read applied migrations", err)
	}
	applied := make(map[string]string, len(rows))
	for _, r := range rows {
		applied[r.Version] = r.Checksum
	}
	return applied, nil
}

func calculateChecksum(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// findMigrationFiles reads NNN_name.sql files sorted by version
func (m *Migrator) findMigrationFiles() ([]MigrationFile, error) {
	paths, err := fs.Glob(m.fsys, "*.sql")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list migrations")
	}
	var out []MigrationFile
	for _, p := range paths {
		base := path.Base(p)
		version, name, ok := strings.Cut(strings.TrimSuffix(base, ".sql"), "_")
		if !ok {
			continue
		}
		data, err := fs.ReadFile(m.fsys, p)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read migration %s", base)
		}
		out = append(out, MigrationFile{
			Version:  version,
			Name:     name,
			SQL:      string(data),
			Checksum: calculateChecksum(data),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// applyMigration runs one migration and records it in the same transaction
func (m *Migrator) applyMigration(ctx context.Context, file MigrationFile) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, file.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO schema_migrations (version, checksum) VALUES (?, ?)"), file.Version, file.Checksum); err != nil {
		return err
	}
	return tx.Commit()
}
