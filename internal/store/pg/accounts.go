package pg

import (
	"context"
	"database/sql"
	"errors"

	"sitegate.io/internal/auth"
	"sitegate.io/internal/projects"
)

type accountTable struct {
	name string
	role auth.Role
}

var (
	clientAccounts        = accountTable{name: "client_users", role: auth.RoleClient}
	subcontractorAccounts = accountTable{name: "subcontractor_users", role: auth.RoleSubcontractor}
)

// FindAccount loads a portal login by email. Subcontractor accounts carry their assigned
// project list.
func (s *Store) FindAccount(ctx context.Context, audience, email string) (auth.Account, error) {
	t, err := s.accountTable(audience)
	if err != nil {
		return auth.Account{}, err
	}

	var (
		a       auth.Account
		level   string
		company sql.NullString
		phone   sql.NullString
	)
	companyCol := "null::text"
	if t.role == auth.RoleClient {
		companyCol = "company_id"
	}
	err = s.db.QueryRowContext(ctx, `
		select id, email, name, phone, password_hash, access_level, `+companyCol+`, portal_enabled
		from `+t.name+`
		where lower(email) = lower($1)
	`, email).Scan(&a.ID, &a.Email, &a.Name, &phone, &a.PasswordHash, &level, &company, &a.PortalEnabled)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Account{}, projects.ErrNotFound
	}
	if err != nil {
		return auth.Account{}, err
	}
	a.Role = t.role
	a.AccessLevel = auth.AccessLevel(level)
	a.CompanyID = company.String
	a.Phone = phone.String

	if t.role == auth.RoleSubcontractor {
		rows, err := s.db.QueryContext(ctx, `
			select project_id from subcontractor_assignments
			where subcontractor_id = $1
			order by project_id
		`, a.ID)
		if err != nil {
			return auth.Account{}, err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return auth.Account{}, err
			}
			a.ProjectIDs = append(a.ProjectIDs, id)
		}
		if err := rows.Err(); err != nil {
			return auth.Account{}, err
		}
	}
	return a, nil
}
