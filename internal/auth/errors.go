package auth

import "errors"

var (
	// ErrInvalidToken covers every token problem: signature, audience, issuer, claims, expiry,
	// revocation. Callers must not distinguish between them.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrRevocationCheck means the revocation store could not be consulted. Callers fail closed.
	ErrRevocationCheck = errors.New("auth: revocation check failed")

	ErrUnauthenticated    = errors.New("auth: unauthenticated")
	ErrForbidden          = errors.New("auth: forbidden")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrPortalDisabled     = errors.New("auth: portal access disabled")
	ErrWeakSecret         = errors.New("auth: signing secret is missing or too short")
	ErrUnknownRole        = errors.New("auth: unknown role")
	ErrInvalidAccessLevel = errors.New("auth: invalid access level for role")
	ErrIncompleteIdentity = errors.New("auth: identity is missing required fields")
)
