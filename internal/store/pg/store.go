// Package pg is the PostgreSQL store behind the portals: projects, documents, reports, portal
// accounts and the activity log.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"sitegate.io/internal/auth"
	"sitegate.io/internal/projects"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var _ projects.Repository = (*Store)(nil)

type Store struct {
	db       *sql.DB
	accounts map[string]accountTable
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

// New wraps an existing handle; tests pass a sqlmock connection.
func New(db *sql.DB) *Store {
	return &Store{db: db, accounts: make(map[string]accountTable)}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// BindPortal maps a portal audience to the account table of its role. Only client and
// subcontractor portals have account tables.
func (s *Store) BindPortal(audience string, role auth.Role) error {
	if !role.IsPortalRole() {
		return fmt.Errorf("pg: no account table for role %q", role)
	}
	if role == auth.RoleClient {
		s.accounts[audience] = clientAccounts
	} else {
		s.accounts[audience] = subcontractorAccounts
	}
	return nil
}

func (s *Store) accountTable(audience string) (accountTable, error) {
	t, ok := s.accounts[audience]
	if !ok {
		return accountTable{}, fmt.Errorf("pg: portal %q is not bound", audience)
	}
	return t, nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// mapErr converts constraint violations to domain errors and passes everything else through.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return projects.ErrNotFound
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s", projects.ErrConflict, pgErr.ConstraintName)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: %s", projects.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

// query accumulates a where clause and its positional arguments.
type query struct {
	where []string
	args  []any
}

func (q *query) arg(v any) string {
	q.args = append(q.args, v)
	return "$" + strconv.Itoa(len(q.args))
}

func (q *query) and(cond string) { q.where = append(q.where, cond) }

func (q *query) clause() string {
	if len(q.where) == 0 {
		return ""
	}
	return " where " + strings.Join(q.where, " and ")
}

// scope adds the data scope predicate for the projects table aliased p. It must be called
// before any caller filter so the scope always occupies the first predicate.
func (q *query) scope(s auth.Scope) error {
	if len(q.where) != 0 {
		return errors.New("pg: scope predicate must come first")
	}
	switch s.Kind {
	case auth.ScopeAll:
		q.and("true")
	case auth.ScopeAssigned:
		if s.UserID == "" {
			return errors.New("pg: assigned scope without user")
		}
		q.and("exists (select 1 from project_assignments pa where pa.project_id = p.id and pa.user_id = " + q.arg(s.UserID) + ")")
	case auth.ScopeOwn:
		switch {
		case s.CompanyID != "":
			q.and("p.company_id = " + q.arg(s.CompanyID))
		case len(s.ProjectIDs) == 0:
			q.and("false")
		default:
			ph := make([]string, len(s.ProjectIDs))
			for i, id := range s.ProjectIDs {
				ph[i] = q.arg(id)
			}
			q.and("p.id in (" + strings.Join(ph, ", ") + ")")
		}
	default:
		return fmt.Errorf("pg: unknown scope %q", s.Kind)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
