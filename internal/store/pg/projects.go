package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"sitegate.io/internal/auth"
	"sitegate.io/internal/projects"
)

const projectColumns = `p.id, p.company_id, p.name, p.status, p.location, p.start_date, p.end_date,
	p.progress, p.updated_at, p.budget_cents, p.actual_cost_cents`

var sortColumns = map[string]string{
	"name":       "p.name",
	"status":     "p.status",
	"start_date": "p.start_date",
	"updated_at": "p.updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (projects.Project, error) {
	var (
		p        projects.Project
		end      sql.NullTime
		budget   sql.NullInt64
		actual   sql.NullInt64
		location sql.NullString
	)
	if err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &p.Status, &location, &p.StartDate, &end,
		&p.Progress, &p.UpdatedAt, &budget, &actual); err != nil {
		return projects.Project{}, err
	}
	p.Location = location.String
	if end.Valid {
		t := end.Time
		p.EndDate = &t
	}
	if budget.Valid {
		v := budget.Int64
		p.BudgetCents = &v
	}
	if actual.Valid {
		v := actual.Int64
		p.ActualCostCents = &v
	}
	return p, nil
}

func (s *Store) ListProjects(ctx context.Context, scope auth.Scope, lq projects.ListQuery) ([]projects.Project, int, error) {
	order, ok := sortColumns[lq.SortField]
	if !ok {
		return nil, 0, fmt.Errorf("pg: unsupported sort field %q", lq.SortField)
	}
	dir := "desc"
	if lq.SortDirection == "asc" {
		dir = "asc"
	}

	q := &query{}
	if err := q.scope(scope); err != nil {
		return nil, 0, err
	}
	if lq.Status != "" {
		q.and("p.status = " + q.arg(lq.Status))
	}
	if lq.Search != "" {
		ph := q.arg("%" + likeEscaper.Replace(lq.Search) + "%")
		q.and("(p.name ilike " + ph + " or p.location ilike " + ph + ")")
	}
	where := q.clause()

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from projects p`+where, q.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args := append(q.args, lq.Limit, lq.Offset())
	stmt := fmt.Sprintf(`select %s from projects p%s order by %s %s, p.id limit $%d offset $%d`,
		projectColumns, where, order, dir, len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []projects.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (s *Store) GetProject(ctx context.Context, scope auth.Scope, id string) (projects.Project, error) {
	q := &query{}
	if err := q.scope(scope); err != nil {
		return projects.Project{}, err
	}
	q.and("p.id = " + q.arg(id))
	p, err := scanProject(s.db.QueryRowContext(ctx, `select `+projectColumns+` from projects p`+q.clause(), q.args...))
	if err != nil {
		return projects.Project{}, mapErr(err)
	}
	return p, nil
}

const documentColumns = `d.id, d.project_id, d.title, d.kind, d.status, d.version, d.uploaded_at,
	d.decided_by, d.decided_at, d.comment, d.cost_impact_cents`

func scanDocument(row rowScanner) (projects.Document, error) {
	var (
		d         projects.Document
		status    string
		decidedBy sql.NullString
		decidedAt sql.NullTime
		comment   sql.NullString
		cost      sql.NullInt64
	)
	if err := row.Scan(&d.ID, &d.ProjectID, &d.Title, &d.Kind, &status, &d.Version, &d.UploadedAt,
		&decidedBy, &decidedAt, &comment, &cost); err != nil {
		return projects.Document{}, err
	}
	d.Status = projects.DocumentStatus(status)
	d.DecidedBy = decidedBy.String
	d.Comment = comment.String
	if decidedAt.Valid {
		t := decidedAt.Time
		d.DecidedAt = &t
	}
	if cost.Valid {
		v := cost.Int64
		d.CostImpactCents = &v
	}
	return d, nil
}

func (s *Store) ListDocuments(ctx context.Context, scope auth.Scope, projectID string) ([]projects.Document, error) {
	q := &query{}
	if err := q.scope(scope); err != nil {
		return nil, err
	}
	q.and("d.project_id = " + q.arg(projectID))
	rows, err := s.db.QueryContext(ctx, `select `+documentColumns+`
		from documents d join projects p on p.id = d.project_id`+q.clause()+`
		order by d.uploaded_at desc, d.id`, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []projects.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) GetDocument(ctx context.Context, scope auth.Scope, id string) (projects.Document, error) {
	q := &query{}
	if err := q.scope(scope); err != nil {
		return projects.Document{}, err
	}
	q.and("d.id = " + q.arg(id))
	d, err := scanDocument(s.db.QueryRowContext(ctx, `select `+documentColumns+`
		from documents d join projects p on p.id = d.project_id`+q.clause(), q.args...))
	if err != nil {
		return projects.Document{}, mapErr(err)
	}
	return d, nil
}

func (s *Store) DecideDocument(ctx context.Context, dec projects.Decision) (projects.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return projects.Document{}, err
	}
	defer func() { _ = tx.Rollback() }()

	d, err := scanDocument(tx.QueryRowContext(ctx, `
		update documents d
		set status = $1, comment = $2, decided_by = $3, decided_at = $4
		where d.id = $5 and d.status = 'pending'
		returning `+documentColumns,
		string(dec.Status), dec.Comment, dec.DecidedBy, dec.DecidedAt, dec.DocumentID))
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := tx.QueryRowContext(ctx, `select exists(select 1 from documents where id = $1)`, dec.DocumentID).Scan(&exists); err != nil {
			return projects.Document{}, err
		}
		if exists {
			return projects.Document{}, projects.ErrConflict
		}
		return projects.Document{}, projects.ErrNotFound
	}
	if err != nil {
		return projects.Document{}, mapErr(err)
	}

	if _, err := tx.ExecContext(ctx, `
		insert into document_decisions (document_id, decision, comment, decided_by, decided_at)
		values ($1, $2, $3, $4, $5)
	`, dec.DocumentID, string(dec.Status), dec.Comment, dec.DecidedBy, dec.DecidedAt); err != nil {
		return projects.Document{}, mapErr(err)
	}
	if err := tx.Commit(); err != nil {
		return projects.Document{}, err
	}
	return d, nil
}

func (s *Store) SubmitReport(ctx context.Context, r projects.Report) (projects.Report, error) {
	_, err := s.db.ExecContext(ctx, `
		insert into subcontractor_reports (id, project_id, submitted_by, summary, progress, crew_size, submitted_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.ProjectID, r.SubmittedBy, strings.TrimSpace(r.Summary), r.Progress, r.Crew, r.SubmittedAt)
	if err != nil {
		return projects.Report{}, mapErr(err)
	}
	return r, nil
}

func (s *Store) UpdateProfile(ctx context.Context, audience, userID string, u projects.ProfileUpdate) (projects.Profile, error) {
	t, err := s.accountTable(audience)
	if err != nil {
		return projects.Profile{}, err
	}
	var p projects.Profile
	err = s.db.QueryRowContext(ctx, `update `+t.name+`
		set name = $1, phone = $2, updated_at = $3
		where id = $4
		returning id, email, name, phone`,
		u.Name, u.Phone, time.Now().UTC(), userID).Scan(&p.ID, &p.Email, &p.Name, &p.Phone)
	if err != nil {
		return projects.Profile{}, mapErr(err)
	}
	return p, nil
}
