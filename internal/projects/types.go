// Package projects serves the portal-facing project data: projects, documents, decisions,
// subcontractor reports and profile updates. Every read is bounded by the caller's data scope.
package projects

import (
	"errors"
	"slices"
	"strings"
	"time"

	"sitegate.io/internal/httpx"
)

var (
	ErrNotFound = errors.New("projects: not found")
	ErrConflict = errors.New("projects: conflict")
)

// Project is a construction project as seen through a portal. Cost fields are nil unless the
// caller holds the cost capability.
type Project struct {
	ID        string     `json:"id"`
	CompanyID string     `json:"company_id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Location  string     `json:"location,omitempty"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Progress  int        `json:"progress"`
	UpdatedAt time.Time  `json:"updated_at"`
	Assignees []string   `json:"-"`

	BudgetCents     *int64 `json:"budget_cents,omitempty"`
	ActualCostCents *int64 `json:"actual_cost_cents,omitempty"`
}

// WithoutCosts returns a copy with every financial field removed.
func (p Project) WithoutCosts() Project {
	p.BudgetCents = nil
	p.ActualCostCents = nil
	return p
}

// DocumentStatus is the review state of a document.
type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "pending"
	DocumentApproved DocumentStatus = "approved"
	DocumentRejected DocumentStatus = "rejected"
)

// Document is a drawing, specification or submittal attached to a project.
type Document struct {
	ID         string         `json:"id"`
	ProjectID  string         `json:"project_id"`
	Title      string         `json:"title"`
	Kind       string         `json:"kind"`
	Status     DocumentStatus `json:"status"`
	Version    int            `json:"version"`
	UploadedAt time.Time      `json:"uploaded_at"`
	DecidedBy  string         `json:"decided_by,omitempty"`
	DecidedAt  *time.Time     `json:"decided_at,omitempty"`
	Comment    string         `json:"comment,omitempty"`

	CostImpactCents *int64 `json:"cost_impact_cents,omitempty"`
}

func (d Document) WithoutCosts() Document {
	d.CostImpactCents = nil
	return d
}

// Decision is a client's approval or rejection of a pending document.
type Decision struct {
	DocumentID string         `json:"document_id"`
	Status     DocumentStatus `json:"decision"`
	Comment    string         `json:"comment,omitempty"`
	DecidedBy  string         `json:"decided_by"`
	DecidedAt  time.Time      `json:"decided_at"`
}

// DecisionInput is the request body of the approve endpoint.
type DecisionInput struct {
	Decision string `json:"decision"`
	Comment  string `json:"comment"`
}

func (in DecisionInput) validate() (DocumentStatus, error) {
	verr := &httpx.ValidationError{}
	var status DocumentStatus
	switch strings.ToLower(strings.TrimSpace(in.Decision)) {
	case "approved", "approve":
		status = DocumentApproved
	case "rejected", "reject":
		status = DocumentRejected
		if strings.TrimSpace(in.Comment) == "" {
			verr.Add("comment", "a comment is required when rejecting")
		}
	default:
		verr.Add("decision", "must be approved or rejected")
	}
	if len(in.Comment) > 2000 {
		verr.Add("comment", "must be at most 2000 characters")
	}
	return status, verr.OrNil()
}

// Report is a subcontractor progress report.
type Report struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	SubmittedBy string    `json:"submitted_by"`
	Summary     string    `json:"summary"`
	Progress    int       `json:"progress"`
	Crew        int       `json:"crew_size"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ReportInput is the request body of the report endpoint.
type ReportInput struct {
	Summary  string `json:"summary"`
	Progress int    `json:"progress"`
	Crew     int    `json:"crew_size"`
}

func (in ReportInput) validate() error {
	verr := &httpx.ValidationError{}
	if s := strings.TrimSpace(in.Summary); s == "" {
		verr.Add("summary", "is required")
	} else if len(s) > 4000 {
		verr.Add("summary", "must be at most 4000 characters")
	}
	if in.Progress < 0 || in.Progress > 100 {
		verr.Add("progress", "must be between 0 and 100")
	}
	if in.Crew < 0 {
		verr.Add("crew_size", "must not be negative")
	}
	return verr.OrNil()
}

// Profile is the editable part of a portal account.
type Profile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// ProfileUpdate is the request body of the profile endpoint.
type ProfileUpdate struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (u *ProfileUpdate) normalize() error {
	u.Name = strings.TrimSpace(u.Name)
	u.Phone = strings.TrimSpace(u.Phone)
	verr := &httpx.ValidationError{}
	if u.Name == "" {
		verr.Add("name", "is required")
	} else if len(u.Name) > 200 {
		verr.Add("name", "must be at most 200 characters")
	}
	if len(u.Phone) > 32 {
		verr.Add("phone", "must be at most 32 characters")
	}
	return verr.OrNil()
}

const (
	DefaultLimit = 20
	MaxLimit     = 100
	MaxPage      = 10000
)

// SortFields are the only columns a list may be ordered by.
var SortFields = []string{"name", "status", "start_date", "updated_at"}

// ProjectStatuses lists the accepted status filter values.
var ProjectStatuses = []string{"planning", "active", "on_hold", "completed"}

// ListQuery holds the caller-supplied list parameters. They never widen the data scope.
type ListQuery struct {
	Page          int
	Limit         int
	SortField     string
	SortDirection string
	Status        string
	Search        string
}

// Normalize applies defaults and rejects values outside the whitelists.
func (q *ListQuery) Normalize() error {
	verr := &httpx.ValidationError{}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Page < 1 || q.Page > MaxPage {
		verr.Add("page", "must be between 1 and 10000")
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit < 1 || q.Limit > MaxLimit {
		verr.Add("limit", "must be between 1 and 100")
	}
	q.SortField = strings.ToLower(strings.TrimSpace(q.SortField))
	if q.SortField == "" {
		q.SortField = "updated_at"
	}
	if !slices.Contains(SortFields, q.SortField) {
		verr.Add("sort_field", "must be one of "+strings.Join(SortFields, ", "))
	}
	q.SortDirection = strings.ToLower(strings.TrimSpace(q.SortDirection))
	switch q.SortDirection {
	case "":
		q.SortDirection = "desc"
	case "asc", "desc":
	default:
		verr.Add("sort_direction", "must be asc or desc")
	}
	q.Status = strings.ToLower(strings.TrimSpace(q.Status))
	if q.Status != "" && !slices.Contains(ProjectStatuses, q.Status) {
		verr.Add("status", "must be one of "+strings.Join(ProjectStatuses, ", "))
	}
	q.Search = strings.TrimSpace(q.Search)
	if len(q.Search) > 200 {
		verr.Add("search", "must be at most 200 characters")
	}
	return verr.OrNil()
}

// Offset returns the row offset of the page.
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Page is one page of a list.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}
