package projects

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sitegate.io/internal/audit"
	"sitegate.io/internal/auth"
	"sitegate.io/internal/ids"
)

// ActivityLogger is the part of audit.Logger the service needs.
type ActivityLogger interface {
	Log(ctx context.Context, e audit.Entry)
}

// Service applies the permission resolver, the data scope and cost stripping around the
// repository. Handlers call it with the session the access gate verified.
type Service struct {
	repo     Repository
	activity ActivityLogger
	now      func() time.Time
}

func NewService(repo Repository, activity ActivityLogger) *Service {
	return &Service{repo: repo, activity: activity, now: time.Now}
}

type access struct {
	perms auth.Permissions
	scope auth.Scope
}

// authorize resolves the caller's permissions, checks action and binds the scope. Denials are
// recorded as unauthorized access attempts.
func (s *Service) authorize(ctx context.Context, sess auth.Session, action auth.Action, resourceType, resourceID string) (access, error) {
	perms, err := auth.Authorize(sess, action)
	if err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			s.log(ctx, audit.Unauthorized(sess.Audience, sess.SubjectID, string(action), resourceType, resourceID))
		}
		return access{}, err
	}
	scope, err := auth.ScopeFor(sess, perms)
	if err != nil {
		return access{}, fmt.Errorf("%w: %v", auth.ErrForbidden, err)
	}
	return access{perms: perms, scope: scope}, nil
}

func (s *Service) log(ctx context.Context, e audit.Entry) {
	if s.activity != nil {
		s.activity.Log(ctx, e)
	}
}

// ListProjects returns one page of the projects inside the caller's scope.
func (s *Service) ListProjects(ctx context.Context, sess auth.Session, q ListQuery) (Page[Project], error) {
	acc, err := s.authorize(ctx, sess, auth.ActionProjectsRead, "project", "")
	if err != nil {
		return Page[Project]{}, err
	}
	if err := q.Normalize(); err != nil {
		return Page[Project]{}, err
	}
	items, total, err := s.repo.ListProjects(ctx, acc.scope, q)
	if err != nil {
		return Page[Project]{}, fmt.Errorf("list projects: %w", err)
	}
	out := make([]Project, 0, len(items))
	for _, p := range items {
		out = append(out, acc.shapeProject(p))
	}
	return Page[Project]{Items: out, Total: total, Page: q.Page, Limit: q.Limit}, nil
}

// GetProject returns a single project inside the caller's scope.
func (s *Service) GetProject(ctx context.Context, sess auth.Session, id string) (Project, error) {
	acc, err := s.authorize(ctx, sess, auth.ActionProjectsRead, "project", id)
	if err != nil {
		return Project{}, err
	}
	p, err := s.repo.GetProject(ctx, acc.scope, id)
	if err != nil {
		return Project{}, err
	}
	return acc.shapeProject(p), nil
}

// ListDocuments returns the documents of a project inside the caller's scope.
func (s *Service) ListDocuments(ctx context.Context, sess auth.Session, projectID string) ([]Document, error) {
	acc, err := s.authorize(ctx, sess, auth.ActionDocumentsRead, "project", projectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetProject(ctx, acc.scope, projectID); err != nil {
		return nil, err
	}
	docs, err := s.repo.ListDocuments(ctx, acc.scope, projectID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, acc.shapeDocument(d))
	}
	return out, nil
}

// DecideDocument approves or rejects a pending document.
func (s *Service) DecideDocument(ctx context.Context, sess auth.Session, documentID string, in DecisionInput) (Document, error) {
	acc, err := s.authorize(ctx, sess, auth.ActionDocumentsApprove, "document", documentID)
	if err != nil {
		return Document{}, err
	}
	status, err := in.validate()
	if err != nil {
		return Document{}, err
	}
	if _, err := s.repo.GetDocument(ctx, acc.scope, documentID); err != nil {
		return Document{}, err
	}
	doc, err := s.repo.DecideDocument(ctx, Decision{
		DocumentID: documentID,
		Status:     status,
		Comment:    in.Comment,
		DecidedBy:  sess.SubjectID,
		DecidedAt:  s.now().UTC(),
	})
	if err != nil {
		return Document{}, err
	}

	typ := audit.ActivityDocumentApprove
	if status == DocumentRejected {
		typ = audit.ActivityDocumentReject
	}
	s.log(ctx, audit.Entry{
		Portal:       sess.Audience,
		PrincipalID:  sess.SubjectID,
		Type:         typ,
		Action:       fmt.Sprintf("document %s %s", documentID, status),
		ResourceType: "document",
		ResourceID:   documentID,
		Metadata:     map[string]any{"project_id": doc.ProjectID, "version": doc.Version},
	})
	return acc.shapeDocument(doc), nil
}

// SubmitReport files a progress report against a project inside the caller's scope.
func (s *Service) SubmitReport(ctx context.Context, sess auth.Session, projectID string, in ReportInput) (Report, error) {
	acc, err := s.authorize(ctx, sess, auth.ActionReportsSubmit, "project", projectID)
	if err != nil {
		return Report{}, err
	}
	if err := in.validate(); err != nil {
		return Report{}, err
	}
	if _, err := s.repo.GetProject(ctx, acc.scope, projectID); err != nil {
		return Report{}, err
	}
	rep, err := s.repo.SubmitReport(ctx, Report{
		ID:          ids.New(),
		ProjectID:   projectID,
		SubmittedBy: sess.SubjectID,
		Summary:     in.Summary,
		Progress:    in.Progress,
		Crew:        in.Crew,
		SubmittedAt: s.now().UTC(),
	})
	if err != nil {
		return Report{}, fmt.Errorf("submit report: %w", err)
	}
	s.log(ctx, audit.Entry{
		Portal:       sess.Audience,
		PrincipalID:  sess.SubjectID,
		Type:         audit.ActivityReportSubmit,
		Action:       "progress report submitted",
		ResourceType: "report",
		ResourceID:   rep.ID,
		Metadata:     map[string]any{"project_id": projectID, "progress": rep.Progress},
	})
	return rep, nil
}

// UpdateProfile edits the caller's own profile.
func (s *Service) UpdateProfile(ctx context.Context, sess auth.Session, u ProfileUpdate) (Profile, error) {
	if _, err := s.authorize(ctx, sess, auth.ActionProfileUpdate, "profile", sess.SubjectID); err != nil {
		return Profile{}, err
	}
	if err := u.normalize(); err != nil {
		return Profile{}, err
	}
	p, err := s.repo.UpdateProfile(ctx, sess.Audience, sess.SubjectID, u)
	if err != nil {
		return Profile{}, err
	}
	s.log(ctx, audit.Entry{
		Portal:       sess.Audience,
		PrincipalID:  sess.SubjectID,
		Type:         audit.ActivityProfileUpdate,
		Action:       "profile updated",
		ResourceType: "profile",
		ResourceID:   sess.SubjectID,
	})
	return p, nil
}

func (a access) shapeProject(p Project) Project {
	if !a.perms.CanViewCosts {
		return p.WithoutCosts()
	}
	return p
}

func (a access) shapeDocument(d Document) Document {
	if !a.perms.CanViewCosts {
		return d.WithoutCosts()
	}
	return d
}
