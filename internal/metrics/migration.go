package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"codeberg.org/mutker/ocxoctl/internal/errors"
	"codeberg.org/mutker/ocxoctl/internal/logger"
)

type migrationPhase struct {
	Phase string
	Path  string
	Error string
}

func migrationError(code errors.ErrorCode, phase, path string, err error) error {
	return errors.New().WithData(code, migrationPhase{Phase: phase, Path: path, Error: err.Error()})
}

// ValidateAndUpdateSchema recreates the schema when the recorded version or
// the samples columns differ from what this build writes. Existing data is
// copied to backupDir first.
func ValidateAndUpdateSchema(db *sql.DB, backupDir string, log logger.Logger) error {
	version, err := GetSchemaVersion(db)
	if err != nil {
		return errors.New().Wrap(ErrSchemaValidationFailed, err)
	}

	columns, err := sampleTableColumns(db)
	if err != nil {
		return err
	}

	switch {
	case version == 0 && len(columns) == 0:
		log.Debug().Msg("Empty database, creating schema")
		return InitSchema(db, log)

	case version == SchemaVersion && slices.Equal(columns, sampleColumns):
		log.Debug().Int("version", version).Msg("Schema version is current")
		return nil

	case version == SchemaVersion:
		log.Warn().
			Strs("columns", columns).
			Msg("Samples table does not match the schema, recreating")

	default:
		log.Warn().
			Int("found", version).
			Int("expected", SchemaVersion).
			Msg("Schema version mismatch, recreating")
	}

	if _, err := backupDatabase(db, backupDir, version, log); err != nil {
		return errors.New().Wrap(ErrSchemaMigrationFailed, err)
	}
	if err := dropTables(db); err != nil {
		return err
	}
	return InitSchema(db, log)
}

// sampleTableColumns lists the samples columns in declaration order, or nil
// if the table does not exist.
func sampleTableColumns(db *sql.DB) ([]string, error) {
	rows, err := db.Query("PRAGMA table_info(samples)")
	if err != nil {
		return nil, migrationError(ErrSchemaValidationFailed, "table_info", "", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, migrationError(ErrSchemaValidationFailed, "table_info", "", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, migrationError(ErrSchemaValidationFailed, "table_info", "", err)
	}

	return columns, nil
}

func backupDatabase(db *sql.DB, backupDir string, version int, log logger.Logger) (string, error) {
	if err := os.MkdirAll(backupDir, defaultDirPerm); err != nil {
		return "", migrationError(ErrSchemaInitFailed, "create_backup_dir", backupDir, err)
	}

	name := fmt.Sprintf("metrics_v%d_%s.db", version, time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(backupDir, name)

	// VACUUM INTO cannot run inside a transaction.
	if _, err := db.Exec("VACUUM INTO ?", path); err != nil {
		return "", migrationError(ErrSchemaInitFailed, "create_backup", path, err)
	}

	log.Info().Str("path", path).Int("version", version).Msg("Database backup created")

	return path, nil
}

func dropTables(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.New().Wrap(ErrSchemaMigrationFailed, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"samples", "schema_versions"} {
		if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return migrationError(ErrSchemaMigrationFailed, "drop_table", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return migrationError(ErrSchemaMigrationFailed, "commit_changes", "", err)
	}

	return nil
}
