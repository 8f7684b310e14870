package projects

import (
	"context"

	"sitegate.io/internal/auth"
)

// Repository is the data store behind the portals. Every method that reads rows takes the
// caller's scope and must apply it before any filter from ListQuery. A row outside the scope is
// reported as ErrNotFound.
type Repository interface {
	ListProjects(ctx context.Context, scope auth.Scope, q ListQuery) ([]Project, int, error)
	GetProject(ctx context.Context, scope auth.Scope, id string) (Project, error)
	ListDocuments(ctx context.Context, scope auth.Scope, projectID string) ([]Document, error)
	GetDocument(ctx context.Context, scope auth.Scope, id string) (Document, error)
	// DecideDocument records the decision on a pending document; ErrConflict when it was
	// already decided.
	DecideDocument(ctx context.Context, d Decision) (Document, error)
	SubmitReport(ctx context.Context, r Report) (Report, error)
	UpdateProfile(ctx context.Context, audience, userID string, u ProfileUpdate) (Profile, error)
}
