// Package sqlrepo stores participants in a SQL table through database/sql.
// Statements use ? placeholders and an ON CONFLICT upsert, which SQLite
// accepts; tests run against github.com/mattn/go-sqlite3.
package sqlrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/zerolog"

	gferrors "github.com/vnykmshr/goflux/pkg/common/errors"
	"github.com/vnykmshr/goflux/pkg/common/validation"
	"github.com/vnykmshr/goflux/pkg/repository"
	"github.com/vnykmshr/goflux/pkg/streaming/reactive"
)

const schema = `CREATE TABLE IF NOT EXISTS participants (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL
)`

const (
	selectOne = `SELECT id, name FROM participants WHERE id = ?`
	selectAll = `SELECT id, name FROM participants ORDER BY id`
	upsert    = `INSERT INTO participants (id, name) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name`
)

// Store implements repository.Participants on a *sql.DB.
type Store struct {
	db *sql.DB
}

// New creates a Store. Call Migrate once before use.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, validation.ValidateNotNil("sqlrepo", "db", nil)
	}
	return &Store{db: db}, nil
}

// Migrate creates the participants table if it is missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return gferrors.NewOperationError("sqlrepo", "migrate", err)
	}
	return nil
}

func (s *Store) FindByID(id string) reactive.Single[repository.Participant] {
	return reactive.Deferred(func(ctx context.Context) (repository.Participant, bool, error) {
		var p repository.Participant
		err := s.db.QueryRowContext(ctx, selectOne, id).Scan(&p.ID, &p.Name)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			zerolog.Ctx(ctx).Debug().Str("id", id).Msg("participant not found")
			return p, false, nil
		case err != nil:
			return p, false, gferrors.NewOperationError("sqlrepo", "findById", err)
		}
		return p, true, nil
	})
}

// FindAll streams rows in ID order. The result set stays open until the
// subscription ends; values are scanned only as they are requested.
func (s *Store) FindAll() reactive.Many[repository.Participant] {
	return reactive.FromCursor(func(ctx context.Context) (reactive.Cursor[repository.Participant], error) {
		rows, err := s.db.QueryContext(ctx, selectAll)
		if err != nil {
			return nil, gferrors.NewOperationError("sqlrepo", "findAll", err)
		}
		return &rowsCursor{rows: rows}, nil
	})
}

func (s *Store) Save(p repository.Participant) reactive.Single[repository.Participant] {
	return reactive.Deferred(func(ctx context.Context) (repository.Participant, bool, error) {
		if err := repository.Validate(p); err != nil {
			return repository.Participant{}, false, err
		}
		if _, err := s.db.ExecContext(ctx, upsert, p.ID, p.Name); err != nil {
			return repository.Participant{}, false, gferrors.NewOperationError("sqlrepo", "save", err).WithContext("id=" + p.ID)
		}
		return p, true, nil
	})
}

type rowsCursor struct {
	rows *sql.Rows
}

func (c *rowsCursor) Next(context.Context) (repository.Participant, bool, error) {
	var p repository.Participant
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return p, false, gferrors.NewOperationError("sqlrepo", "findAll", err)
		}
		return p, false, nil
	}
	if err := c.rows.Scan(&p.ID, &p.Name); err != nil {
		return p, false, gferrors.NewOperationError("sqlrepo", "scan", err)
	}
	return p, true, nil
}

func (c *rowsCursor) Close() error {
	return c.rows.Close()
}

var _ repository.Participants = (*Store)(nil)
