package projects

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"sitegate.io/internal/auth"
)

// MemoryRepository is an in-process Repository used in development and tests. It applies the
// scope predicate before any filter, the same order the SQL store uses.
type MemoryRepository struct {
	mu        sync.RWMutex
	projects  map[string]Project
	documents map[string]Document
	reports   []Report
	accounts  map[string]auth.Account
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		projects:  make(map[string]Project),
		documents: make(map[string]Document),
		accounts:  make(map[string]auth.Account),
	}
}

func (m *MemoryRepository) PutProject(p Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Assignees = slices.Clone(p.Assignees)
	m.projects[p.ID] = p
}

func (m *MemoryRepository) PutDocument(d Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[d.ID] = d
}

// PutAccount registers a login for the portal with the given audience.
func (m *MemoryRepository) PutAccount(audience string, a auth.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ProjectIDs = slices.Clone(a.ProjectIDs)
	m.accounts[accountKey(audience, a.ID)] = a
}

func accountKey(audience, id string) string { return audience + "/" + id }

// FindAccount looks an account up by email within one portal.
func (m *MemoryRepository) FindAccount(_ context.Context, audience, email string) (auth.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for key, a := range m.accounts {
		if strings.HasPrefix(key, audience+"/") && strings.EqualFold(a.Email, email) {
			a.ProjectIDs = slices.Clone(a.ProjectIDs)
			return a, nil
		}
	}
	return auth.Account{}, ErrNotFound
}

func ref(p Project) auth.ProjectRef {
	return auth.ProjectRef{ID: p.ID, CompanyID: p.CompanyID, Assignees: p.Assignees}
}

func (m *MemoryRepository) ListProjects(_ context.Context, scope auth.Scope, q ListQuery) ([]Project, int, error) {
	m.mu.RLock()
	visible := make([]Project, 0, len(m.projects))
	for _, p := range m.projects {
		if scope.AllowsProject(ref(p)) {
			visible = append(visible, p)
		}
	}
	m.mu.RUnlock()

	filtered := visible[:0]
	search := strings.ToLower(q.Search)
	for _, p := range visible {
		if q.Status != "" && p.Status != q.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Location), search) {
			continue
		}
		filtered = append(filtered, p)
	}

	slices.SortFunc(filtered, func(a, b Project) int {
		var c int
		switch q.SortField {
		case "name":
			c = cmp.Compare(a.Name, b.Name)
		case "status":
			c = cmp.Compare(a.Status, b.Status)
		case "start_date":
			c = a.StartDate.Compare(b.StartDate)
		default:
			c = a.UpdatedAt.Compare(b.UpdatedAt)
		}
		if q.SortDirection == "desc" {
			c = -c
		}
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		return c
	})

	total := len(filtered)
	start := min(q.Offset(), total)
	end := min(start+q.Limit, total)
	return slices.Clone(filtered[start:end]), total, nil
}

func (m *MemoryRepository) GetProject(_ context.Context, scope auth.Scope, id string) (Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok || !scope.AllowsProject(ref(p)) {
		return Project{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryRepository) ListDocuments(_ context.Context, scope auth.Scope, projectID string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[projectID]
	if !ok || !scope.AllowsProject(ref(p)) {
		return nil, ErrNotFound
	}
	var out []Document
	for _, d := range m.documents {
		if d.ProjectID == projectID {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b Document) int {
		return cmp.Or(b.UploadedAt.Compare(a.UploadedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (m *MemoryRepository) GetDocument(_ context.Context, scope auth.Scope, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	p, ok := m.projects[d.ProjectID]
	if !ok || !scope.AllowsProject(ref(p)) {
		return Document{}, ErrNotFound
	}
	return d, nil
}

func (m *MemoryRepository) DecideDocument(_ context.Context, dec Decision) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[dec.DocumentID]
	if !ok {
		return Document{}, ErrNotFound
	}
	if d.Status != DocumentPending {
		return Document{}, ErrConflict
	}
	at := dec.DecidedAt
	d.Status = dec.Status
	d.Comment = dec.Comment
	d.DecidedBy = dec.DecidedBy
	d.DecidedAt = &at
	m.documents[d.ID] = d
	return d, nil
}

func (m *MemoryRepository) SubmitReport(_ context.Context, r Report) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[r.ProjectID]; !ok {
		return Report{}, ErrNotFound
	}
	m.reports = append(m.reports, r)
	return r, nil
}

// Reports returns the submitted reports of a project.
func (m *MemoryRepository) Reports(projectID string) []Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Report
	for _, r := range m.reports {
		if r.ProjectID == projectID {
			out = append(out, r)
		}
	}
	return out
}

func (m *MemoryRepository) UpdateProfile(_ context.Context, audience, userID string, u ProfileUpdate) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := accountKey(audience, userID)
	a, ok := m.accounts[key]
	if !ok {
		return Profile{}, ErrNotFound
	}
	a.Name = u.Name
	a.Phone = u.Phone
	m.accounts[key] = a
	return Profile{ID: a.ID, Email: a.Email, Name: a.Name, Phone: a.Phone}, nil
}
