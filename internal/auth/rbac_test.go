package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func levelsFor(role Role) []AccessLevel {
	if levels, ok := accessLevelsByRole[role]; ok {
		return levels
	}
	return []AccessLevel{AccessNone}
}

func TestResolveIsExhaustive(t *testing.T) {
	for _, role := range AllRoles {
		for _, level := range levelsFor(role) {
			perms, err := Resolve(role, level)
			require.NoError(t, err, "%s/%s", role, level)
			require.Equal(t, role, perms.Role)
			require.NotEmpty(t, perms.Scope, "%s/%s", role, level)
			require.True(t, perms.Allows(ActionProjectsRead), "%s/%s must read projects", role, level)
			for _, a := range perms.Actions() {
				require.Contains(t, AllActions, a)
			}
		}
	}
}

func TestResolveScopes(t *testing.T) {
	cases := map[Role]DataScope{
		RoleManagement:        ScopeAll,
		RoleTechnicalDirector: ScopeAll,
		RoleAdmin:             ScopeAll,
		RoleProjectManager:    ScopeAssigned,
		RolePurchaseManager:   ScopeAssigned,
		RoleSiteEngineer:      ScopeAssigned,
		RoleArchitect:         ScopeAssigned,
		RoleFieldWorker:       ScopeAssigned,
		RoleClient:            ScopeOwn,
		RoleSubcontractor:     ScopeOwn,
	}
	require.Len(t, cases, len(AllRoles))
	for role, want := range cases {
		perms, err := Resolve(role, levelsFor(role)[0])
		require.NoError(t, err)
		require.Equal(t, want, perms.Scope, role)
	}
}

func TestResolveClientLevels(t *testing.T) {
	viewOnly, err := Resolve(RoleClient, AccessViewOnly)
	require.NoError(t, err)
	require.False(t, viewOnly.Allows(ActionDocumentsApprove))
	require.False(t, viewOnly.Allows(ActionDocumentsComment))
	require.False(t, viewOnly.CanViewCosts)

	reviewer, err := Resolve(RoleClient, AccessReviewer)
	require.NoError(t, err)
	require.True(t, reviewer.Allows(ActionDocumentsComment))
	require.False(t, reviewer.Allows(ActionDocumentsApprove))

	approver, err := Resolve(RoleClient, AccessApprover)
	require.NoError(t, err)
	require.True(t, approver.Allows(ActionDocumentsApprove))
	require.True(t, approver.CanViewCosts)
	require.False(t, approver.Allows(ActionProjectsManage))
}

func TestResolveSubcontractorLevels(t *testing.T) {
	viewOnly, err := Resolve(RoleSubcontractor, AccessViewOnly)
	require.NoError(t, err)
	require.False(t, viewOnly.Allows(ActionReportsSubmit))

	standard, err := Resolve(RoleSubcontractor, AccessStandard)
	require.NoError(t, err)
	require.True(t, standard.Allows(ActionReportsSubmit))
	require.True(t, standard.Allows(ActionDocumentsUpload))
	require.False(t, standard.CanViewCosts)
}

func TestResolveCostCapability(t *testing.T) {
	require.True(t, mustResolve(t, RoleManagement).CanViewCosts)
	require.True(t, mustResolve(t, RoleProjectManager).CanViewCosts)
	require.False(t, mustResolve(t, RoleFieldWorker).CanViewCosts)
	require.False(t, mustResolve(t, RoleSiteEngineer).CanViewCosts)
}

func mustResolve(t *testing.T, role Role) Permissions {
	t.Helper()
	perms, err := Resolve(role, AccessNone)
	require.NoError(t, err)
	return perms
}

func TestResolveRejectsUnknown(t *testing.T) {
	_, err := Resolve(Role("superuser"), AccessNone)
	require.True(t, errors.Is(err, ErrUnknownRole), "got %v", err)

	_, err = Resolve(RoleClient, AccessStandard)
	require.True(t, errors.Is(err, ErrInvalidAccessLevel), "got %v", err)

	_, err = Resolve(RoleClient, AccessNone)
	require.True(t, errors.Is(err, ErrInvalidAccessLevel), "got %v", err)

	_, err = Resolve(RoleManagement, AccessApprover)
	require.True(t, errors.Is(err, ErrInvalidAccessLevel), "got %v", err)
}

func TestResolveDoesNotShareSlices(t *testing.T) {
	pm := mustResolve(t, RoleProjectManager)
	eng := mustResolve(t, RoleSiteEngineer)
	require.True(t, pm.Allows(ActionProjectsManage))
	require.False(t, eng.Allows(ActionProjectsManage))
	require.NotContains(t, projectLeadActions, ActionProjectsManage)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("  Client ")
	require.NoError(t, err)
	require.Equal(t, RoleClient, r)
	_, err = ParseRole("")
	require.ErrorIs(t, err, ErrUnknownRole)
}

func TestAuthorize(t *testing.T) {
	s := Session{Identity: Identity{SubjectID: "u", Role: RoleClient, AccessLevel: AccessViewOnly, CompanyID: "c"}}
	_, err := Authorize(s, ActionDocumentsApprove)
	require.ErrorIs(t, err, ErrForbidden)

	s.AccessLevel = AccessApprover
	perms, err := Authorize(s, ActionDocumentsApprove)
	require.NoError(t, err)
	require.Equal(t, ScopeOwn, perms.Scope)
}
