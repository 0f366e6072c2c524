package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

type SQLiteDBOption struct {
	// mode can be ro | rw | rwc | memory
	Mode string
	// cache can be shared | private
	Cache string
	// JournalMode be DELETE | TRUNCATE | PERSIST | MEMORY | WAL | OFF
	JournalMode string
	// TxLock can be deferred | immediate | exclusive.
	// Stores that do read-modify-write inside a transaction rely on immediate.
	TxLock string
	// BusyTimeout is how long a connection waits on a locked database.
	BusyTimeout time.Duration
	ForeignKeys bool
}

// DefaultSQLiteDBOption is what the stores expect: writers serialize on
// BEGIN IMMEDIATE and wait for each other instead of failing with SQLITE_BUSY.
var DefaultSQLiteDBOption = SQLiteDBOption{
	Mode:        "rwc",
	JournalMode: "WAL",
	TxLock:      "immediate",
	BusyTimeout: 5 * time.Second,
	ForeignKeys: true,
}

func (config *SQLiteDBOption) DSN(sb *strings.Builder) {
	if config == nil {
		return
	}

	sep := "?"
	param := func(k, v string) {
		sb.WriteString(sep)
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(v)
		sep = "&"
	}

	if config.Mode != "" {
		param("mode", config.Mode)
	}
	if config.Cache != "" {
		param("cache", config.Cache)
	}
	if config.JournalMode != "" {
		param("_journal_mode", config.JournalMode)
	}
	if config.TxLock != "" {
		param("_txlock", config.TxLock)
	}
	if config.BusyTimeout > 0 {
		param("_busy_timeout", strconv.FormatInt(config.BusyTimeout.Milliseconds(), 10))
	}
	if config.ForeignKeys {
		param("_foreign_keys", "1")
	}
}

type SQLiteDB struct {
	*sql.DB
	config       *SQLiteDBOption
	file         string
	migrationDir string
}

func NewSQLiteDB(file, migrationDir string, config *SQLiteDBOption) (*SQLiteDB, error) {
	db := &SQLiteDB{config: config, migrationDir: migrationDir, file: file}

	var dsn strings.Builder
	dsn.WriteString("file:")
	dsn.WriteString(db.file)

	if db.config != nil {
		config.DSN(&dsn)
	}
	d, err := sql.Open("sqlite3", dsn.String())
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	db.DB = d
	return db, nil
}

func (db *SQLiteDB) Migrate() error {
	return Migrate(db.DB, db.migrationDir)
}

// Migrate applies every pending goose migration found in dir.
func Migrate(db *sql.DB, dir string) error {
	goose.SetBaseFS(os.DirFS(dir))
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose.SetDialect: %w", err)
	}

	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("goose.Up: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction and commits when fn returns nil.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	return nil
}

// translateSQLiteError maps constraint violations onto the package sentinels.
// Errors that are not constraint violations are returned unchanged.
func translateSQLiteError(err error, onUnique, onForeignKey error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
		return err
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		if onUnique != nil {
			return onUnique
		}
	case sqlite3.ErrConstraintForeignKey:
		if onForeignKey != nil {
			return onForeignKey
		}
	}
	return err
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
