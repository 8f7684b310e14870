package auth

import "slices"

// Account is a portal login as stored by the account repository.
type Account struct {
	ID           string
	Email        string
	Name         string
	Phone        string
	PasswordHash string
	Role         Role
	AccessLevel  AccessLevel
	CompanyID    string
	ProjectIDs   []string
	// PortalEnabled is false when staff revoked the account's portal access.
	PortalEnabled bool
}

// Identity returns the token claims for the account.
func (a Account) Identity() Identity {
	return Identity{
		SubjectID:   a.ID,
		Email:       a.Email,
		Name:        a.Name,
		Role:        a.Role,
		AccessLevel: a.AccessLevel,
		CompanyID:   a.CompanyID,
		ProjectIDs:  slices.Clone(a.ProjectIDs),
	}
}
