package auth

import (
	"fmt"
	"strings"
)

// Role is a closed enumeration of the roles known to the resolver.
type Role string

const (
	RoleManagement        Role = "management"
	RoleTechnicalDirector Role = "technical_director"
	RoleAdmin             Role = "admin"
	RoleProjectManager    Role = "project_manager"
	RolePurchaseManager   Role = "purchase_manager"
	RoleSiteEngineer      Role = "site_engineer"
	RoleArchitect         Role = "architect"
	RoleFieldWorker       Role = "field_worker"
	RoleClient            Role = "client"
	RoleSubcontractor     Role = "subcontractor"
)

// AllRoles lists every role; tests use it to prove Resolve is exhaustive.
var AllRoles = []Role{
	RoleManagement,
	RoleTechnicalDirector,
	RoleAdmin,
	RoleProjectManager,
	RolePurchaseManager,
	RoleSiteEngineer,
	RoleArchitect,
	RoleFieldWorker,
	RoleClient,
	RoleSubcontractor,
}

// ParseRole normalizes and validates a role string.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllRoles {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// IsPortalRole reports whether the role belongs to an external portal rather than staff.
func (r Role) IsPortalRole() bool {
	return r == RoleClient || r == RoleSubcontractor
}

// AccessLevel refines portal roles. Staff roles carry no access level.
type AccessLevel string

const (
	AccessNone     AccessLevel = ""
	AccessViewOnly AccessLevel = "view_only"
	AccessReviewer AccessLevel = "reviewer"
	AccessApprover AccessLevel = "approver"
	AccessStandard AccessLevel = "standard"
)

// accessLevelsByRole lists the levels each portal role accepts.
var accessLevelsByRole = map[Role][]AccessLevel{
	RoleClient:        {AccessViewOnly, AccessReviewer, AccessApprover},
	RoleSubcontractor: {AccessViewOnly, AccessStandard},
}

// ValidAccessLevel reports whether level is allowed for role.
func ValidAccessLevel(role Role, level AccessLevel) bool {
	levels, portal := accessLevelsByRole[role]
	if !portal {
		return level == AccessNone
	}
	for _, l := range levels {
		if l == level {
			return true
		}
	}
	return false
}

// DataScope is the row-level visibility boundary derived from a role.
type DataScope string

const (
	// ScopeAll sees every project.
	ScopeAll DataScope = "all"
	// ScopeAssigned sees projects the principal is explicitly assigned to.
	ScopeAssigned DataScope = "assigned"
	// ScopeOwn sees the company's projects (clients) or the assigned list carried in the
	// session (subcontractors).
	ScopeOwn DataScope = "own"
)

// Resolve maps a role and access level to its permission set. It is pure and exhaustive over
// AllRoles; an unknown role or an access level that does not belong to the role is an error.
func Resolve(role Role, level AccessLevel) (Permissions, error) {
	if !ValidAccessLevel(role, level) {
		if _, err := ParseRole(string(role)); err != nil {
			return Permissions{}, err
		}
		return Permissions{}, fmt.Errorf("%w: %s/%q", ErrInvalidAccessLevel, role, level)
	}

	switch role {
	case RoleManagement, RoleTechnicalDirector, RoleAdmin:
		return newPermissions(role, level, ScopeAll, true, AllActions...), nil
	case RoleProjectManager:
		return newPermissions(role, level, ScopeAssigned, true, withActions(projectLeadActions, ActionProjectsManage)...), nil
	case RolePurchaseManager:
		return newPermissions(role, level, ScopeAssigned, true, withActions(readOnlyActions, ActionPurchasingManage)...), nil
	case RoleSiteEngineer, RoleArchitect:
		return newPermissions(role, level, ScopeAssigned, false, withActions(fieldActions, ActionDocumentsComment)...), nil
	case RoleFieldWorker:
		return newPermissions(role, level, ScopeAssigned, false, fieldActions...), nil
	case RoleClient:
		return resolveClient(level), nil
	case RoleSubcontractor:
		return resolveSubcontractor(level), nil
	default:
		return Permissions{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
}

func resolveClient(level AccessLevel) Permissions {
	base := []Action{ActionProjectsRead, ActionDocumentsRead, ActionProfileUpdate}
	switch level {
	case AccessApprover:
		return newPermissions(RoleClient, level, ScopeOwn, true, withActions(base, ActionDocumentsComment, ActionDocumentsApprove)...)
	case AccessReviewer:
		return newPermissions(RoleClient, level, ScopeOwn, false, withActions(base, ActionDocumentsComment)...)
	default:
		return newPermissions(RoleClient, level, ScopeOwn, false, base...)
	}
}

func resolveSubcontractor(level AccessLevel) Permissions {
	base := []Action{ActionProjectsRead, ActionDocumentsRead, ActionTasksRead, ActionProfileUpdate}
	if level == AccessStandard {
		return newPermissions(RoleSubcontractor, level, ScopeOwn, false, withActions(base, ActionReportsSubmit, ActionDocumentsUpload)...)
	}
	return newPermissions(RoleSubcontractor, level, ScopeOwn, false, base...)
}
