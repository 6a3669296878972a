// Package pg implements the durable stores over PostgreSQL. One Store
// owns the connection pool; narrow accessors hand out the per-concern
// implementations consumed by the service layer.
package pg

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/pgx/v5/pgconn"

	"opstrack.org/internal/audit"
	"opstrack.org/internal/auth"
	"opstrack.org/internal/permission"
	"opstrack.org/internal/session"
)

const pgErrUniqueViolation = "23505"

// Store wraps the shared connection pool.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres via the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle; used by tests with sqlmock.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Sessions returns the session record store.
func (s *Store) Sessions() session.Store { return &sessionStore{db: s.db} }

// Grants returns the team grant store.
func (s *Store) Grants() permission.GrantStore { return &grantStore{db: s.db} }

// Teams returns the team directory.
func (s *Store) Teams() permission.TeamDirectory { return &teamDirectory{db: s.db} }

// Audit returns the audit event store.
func (s *Store) Audit() audit.Store { return &auditStore{db: s.db} }

// Principals returns the account store.
func (s *Store) Principals() auth.PrincipalStore { return &principalStore{db: s.db} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}
