package auth

import (
	"fmt"
	"slices"
	"strings"
)

// Permissions is the derived, never stored, permission set of a role and access level.
type Permissions struct {
	Role        Role
	AccessLevel AccessLevel
	Scope       DataScope
	// CanViewCosts gates cost and financial fields independently of the action set.
	CanViewCosts bool

	actions map[Action]struct{}
}

func newPermissions(role Role, level AccessLevel, scope DataScope, costs bool, actions ...Action) Permissions {
	set := make(map[Action]struct{}, len(actions))
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return Permissions{Role: role, AccessLevel: level, Scope: scope, CanViewCosts: costs, actions: set}
}

// Allows reports whether the permission set grants action.
func (p Permissions) Allows(action Action) bool {
	_, ok := p.actions[action]
	return ok
}

// Actions returns the granted actions in a stable order.
func (p Permissions) Actions() []Action {
	out := make([]Action, 0, len(p.actions))
	for a := range p.actions {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// Scope is a data scope bound to a concrete principal. Every data-access path applies it before
// any caller supplied filter.
type Scope struct {
	Kind       DataScope
	UserID     string
	CompanyID  string
	ProjectIDs []string
}

// ScopeFor binds the resolved scope of perms to the identity in s.
func ScopeFor(s Session, perms Permissions) (Scope, error) {
	scope := Scope{Kind: perms.Scope, UserID: s.SubjectID}
	switch perms.Scope {
	case ScopeAll:
		return scope, nil
	case ScopeAssigned:
		if strings.TrimSpace(s.SubjectID) == "" {
			return Scope{}, fmt.Errorf("%w: assigned scope needs a subject", ErrIncompleteIdentity)
		}
		return scope, nil
	case ScopeOwn:
		switch s.Role {
		case RoleClient:
			if strings.TrimSpace(s.CompanyID) == "" {
				return Scope{}, fmt.Errorf("%w: client scope needs a company", ErrIncompleteIdentity)
			}
			scope.CompanyID = s.CompanyID
		case RoleSubcontractor:
			scope.ProjectIDs = slices.Clone(s.ProjectIDs)
		default:
			return Scope{}, fmt.Errorf("%w: own scope for role %s", ErrUnknownRole, s.Role)
		}
		return scope, nil
	default:
		return Scope{}, fmt.Errorf("auth: unknown data scope %q", perms.Scope)
	}
}

// ProjectRef is the minimum a scope needs to decide visibility of a project row.
type ProjectRef struct {
	ID        string
	CompanyID string
	Assignees []string
}

// AllowsProject reports whether the project row is inside the scope.
func (s Scope) AllowsProject(p ProjectRef) bool {
	switch s.Kind {
	case ScopeAll:
		return true
	case ScopeAssigned:
		return s.UserID != "" && slices.Contains(p.Assignees, s.UserID)
	case ScopeOwn:
		if s.CompanyID != "" {
			return p.CompanyID == s.CompanyID
		}
		return slices.Contains(s.ProjectIDs, p.ID)
	default:
		return false
	}
}

// Authorize resolves the session's permissions and checks action, returning ErrForbidden when
// it is not granted.
func Authorize(s Session, action Action) (Permissions, error) {
	perms, err := Resolve(s.Role, s.AccessLevel)
	if err != nil {
		return Permissions{}, fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	if !perms.Allows(action) {
		return perms, fmt.Errorf("%w: %s", ErrForbidden, action)
	}
	return perms, nil
}
