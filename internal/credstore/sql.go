package credstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"ballotkey.org/internal/migrate"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the schema the SQL store expects.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// SQL keeps sealed secrets in a database/sql backend. Drivers "sqlite"
// (modernc.org/sqlite) and "pgx" (jackc/pgx stdlib) are registered by the
// binary.
type SQL struct {
	db     *sql.DB
	sealer *Sealer
	now    func() time.Time
}

var _ Store = (*SQL)(nil)

// NewSQL wraps an already migrated database.
func NewSQL(db *sql.DB, sealer *Sealer) *SQL {
	return &SQL{db: db, sealer: sealer, now: time.Now}
}

// OpenSQL opens the database, applies migrations and loads (or creates) the
// per-store salt before deriving the sealing key.
func OpenSQL(ctx context.Context, driver, dsn, passphrase string) (*SQL, error) {
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrUnavailable, driver, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(15 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrUnavailable, err)
	}
	if err := migrate.NewManager(db, Migrations()).Up(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrate: %w", ErrUnavailable, err)
	}
	salt, err := loadSalt(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: salt: %w", ErrUnavailable, err)
	}
	sealer, err := NewSealer(passphrase, salt)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQL(db, sealer), nil
}

func (s *SQL) Close() error { return s.db.Close() }

func (s *SQL) DB() *sql.DB { return s.db }

func (s *SQL) Get(ctx context.Context, key Key) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	var sealed string
	err := s.db.QueryRowContext(ctx, `select value from credentials where name = $1`, string(key)).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", unavailable("get", key, err)
	}
	value, err := s.sealer.Open(key, sealed)
	if err != nil {
		return "", unavailable("get", key, err)
	}
	return value, nil
}

func (s *SQL) Set(ctx context.Context, key Key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	sealed, err := s.sealer.Seal(key, value)
	if err != nil {
		return unavailable("set", key, err)
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into credentials(name, value, updated_at)
		values ($1, $2, $3)
		on conflict (name) do update
		set value = excluded.value, updated_at = excluded.updated_at
	`, string(key), sealed, s.now().UTC()); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (s *SQL) Delete(ctx context.Context, key Key) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `delete from credentials where name = $1`, string(key)); err != nil {
		return unavailable("delete", key, err)
	}
	return nil
}

func loadSalt(ctx context.Context, db *sql.DB) ([]byte, error) {
	const query = `select value from credential_meta where name = 'salt'`
	var encoded string
	err := db.QueryRowContext(ctx, query).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		salt, err := NewSalt()
		if err != nil {
			return nil, err
		}
		// Concurrent first opens race here; whichever insert lands wins and
		// both read it back.
		if _, err := db.ExecContext(ctx, `
			insert into credential_meta(name, value) values ('salt', $1)
			on conflict (name) do nothing
		`, base64.StdEncoding.EncodeToString(salt)); err != nil {
			return nil, err
		}
		err = db.QueryRowContext(ctx, query).Scan(&encoded)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(encoded)
}
