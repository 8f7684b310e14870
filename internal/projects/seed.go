package projects

import (
	"fmt"
	"time"

	"sitegate.io/internal/auth"
)

// DemoPassword is the password of every seeded development account.
const DemoPassword = "sitegate-demo-password"

// SeedDemo fills a development repository with two client companies, a subcontractor and a
// handful of projects and documents.
func SeedDemo(repo *MemoryRepository, clientAudience, subcontractorAudience string) error {
	hash, err := auth.HashPassword(DemoPassword)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	base := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	cents := func(v int64) *int64 { return &v }

	projects := []Project{
		{ID: "prj-harbor", CompanyID: "cmp-acme", Name: "Harbor View Offices", Status: "active", Location: "Pier 4", Progress: 35, BudgetCents: cents(1_250_000_00), ActualCostCents: cents(410_000_00), Assignees: []string{"staff-pm-1"}},
		{ID: "prj-mill", CompanyID: "cmp-acme", Name: "Old Mill Lofts", Status: "planning", Location: "Mill Road", BudgetCents: cents(640_000_00), Assignees: []string{"staff-pm-1"}},
		{ID: "prj-school", CompanyID: "cmp-north", Name: "Northside School Annex", Status: "active", Location: "Elm Street", Progress: 60, BudgetCents: cents(2_100_000_00), ActualCostCents: cents(1_300_000_00), Assignees: []string{"staff-pm-2"}},
	}
	for i, p := range projects {
		p.StartDate = base.AddDate(0, i, 0)
		p.UpdatedAt = base.AddDate(0, i, 7)
		repo.PutProject(p)
	}

	docs := []Document{
		{ID: "doc-harbor-facade", ProjectID: "prj-harbor", Title: "Facade elevation rev C", Kind: "drawing", Status: DocumentPending, Version: 3, CostImpactCents: cents(18_500_00)},
		{ID: "doc-harbor-hvac", ProjectID: "prj-harbor", Title: "HVAC submittal", Kind: "submittal", Status: DocumentApproved, Version: 1},
		{ID: "doc-school-roof", ProjectID: "prj-school", Title: "Roof membrane spec", Kind: "specification", Status: DocumentPending, Version: 2},
	}
	for i, d := range docs {
		d.UploadedAt = base.AddDate(0, 0, i)
		repo.PutDocument(d)
	}

	repo.PutAccount(clientAudience, auth.Account{
		ID: "cli-acme-owner", Email: "owner@acme.example", Name: "Acme Owner", PasswordHash: hash,
		Role: auth.RoleClient, AccessLevel: auth.AccessApprover, CompanyID: "cmp-acme", PortalEnabled: true,
	})
	repo.PutAccount(clientAudience, auth.Account{
		ID: "cli-acme-viewer", Email: "viewer@acme.example", Name: "Acme Viewer", PasswordHash: hash,
		Role: auth.RoleClient, AccessLevel: auth.AccessViewOnly, CompanyID: "cmp-acme", PortalEnabled: true,
	})
	repo.PutAccount(clientAudience, auth.Account{
		ID: "cli-north-former", Email: "former@north.example", Name: "Former Contact", PasswordHash: hash,
		Role: auth.RoleClient, AccessLevel: auth.AccessReviewer, CompanyID: "cmp-north", PortalEnabled: false,
	})
	repo.PutAccount(subcontractorAudience, auth.Account{
		ID: "sub-rebar", Email: "crew@rebar.example", Name: "Rebar Crew Lead", PasswordHash: hash,
		Role: auth.RoleSubcontractor, AccessLevel: auth.AccessStandard, ProjectIDs: []string{"prj-harbor", "prj-school"}, PortalEnabled: true,
	})
	return nil
}
