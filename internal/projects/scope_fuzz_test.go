package projects

import (
	"context"
	"errors"
	"testing"

	"sitegate.io/internal/auth"
	"sitegate.io/internal/httpx"
)

// FuzzScopeContainment feeds arbitrary list parameters to the service and checks that a client
// bound to one company never sees another company's project.
func FuzzScopeContainment(f *testing.F) {
	f.Add(1, 20, "name", "asc", "", "")
	f.Add(1, 100, "updated_at", "desc", "active", "school")
	f.Add(2, 1, "status", "", "planning", "%")
	f.Add(0, 0, "", "", "", "' OR 1=1 --")
	f.Add(3, 50, "start_date", "ASC", "completed", "cmp-north")

	repo := NewMemoryRepository()
	if err := SeedDemo(repo, clientAud, subAud); err != nil {
		f.Fatalf("seed: %v", err)
	}
	svc := NewService(repo, nil)
	sess := clientSession(auth.AccessApprover, "cmp-acme")

	f.Fuzz(func(t *testing.T, page, limit int, sortField, sortDir, status, search string) {
		got, err := svc.ListProjects(context.Background(), sess, ListQuery{
			Page: page, Limit: limit, SortField: sortField, SortDirection: sortDir,
			Status: status, Search: search,
		})
		if err != nil {
			var verr *httpx.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("unexpected error: %v", err)
			}
			return
		}
		if got.Total > 2 {
			t.Fatalf("total %d exceeds the company's project count", got.Total)
		}
		for _, p := range got.Items {
			if p.CompanyID != "cmp-acme" {
				t.Fatalf("project %s of %s leaked into cmp-acme's scope", p.ID, p.CompanyID)
			}
		}
	})
}
