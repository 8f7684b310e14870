// Package audit records portal activity. Writes are asynchronous and never fail the request
// that triggered them.
package audit

import (
	"maps"
	"time"
)

// ActivityType classifies an activity entry.
type ActivityType string

const (
	ActivityPageVisit       ActivityType = "page_visit"
	ActivityAPIRequest      ActivityType = "api_request"
	ActivityLogin           ActivityType = "login"
	ActivityLoginFailed     ActivityType = "login_failed"
	ActivityLogout          ActivityType = "logout"
	ActivitySessionRefresh  ActivityType = "session_refresh"
	ActivityDocumentApprove ActivityType = "document_approve"
	ActivityDocumentReject  ActivityType = "document_reject"
	ActivityProfileUpdate   ActivityType = "profile_update"
	ActivityReportSubmit    ActivityType = "report_submit"
	ActivityRateLimited     ActivityType = "rate_limited"
	ActivitySuspiciousBlock ActivityType = "suspicious_activity_block"
	ActivityUnauthorized    ActivityType = "unauthorized_access_attempt"
)

// MetaUnauthorizedAccess marks entries produced by a denied operation.
const MetaUnauthorizedAccess = "unauthorized_access"

var critical = map[ActivityType]struct{}{
	ActivityLogin:           {},
	ActivityDocumentApprove: {},
	ActivityDocumentReject:  {},
	ActivityProfileUpdate:   {},
	ActivitySuspiciousBlock: {},
	ActivityUnauthorized:    {},
}

// IsCritical reports whether entries of this type also go to the security alert path.
func IsCritical(t ActivityType) bool {
	_, ok := critical[t]
	return ok
}

// Entry is an immutable activity record. Append only.
type Entry struct {
	ID           string         `json:"id"`
	Portal       string         `json:"portal"`
	PrincipalID  string         `json:"principal_id"`
	Type         ActivityType   `json:"activity_type"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	IP           string         `json:"ip,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// Unauthorized builds the entry recorded when an authenticated principal attempts an operation
// it is not permitted to perform.
func Unauthorized(portal, principalID, action, resourceType, resourceID string) Entry {
	return Entry{
		Portal:       portal,
		PrincipalID:  principalID,
		Type:         ActivityUnauthorized,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     map[string]any{MetaUnauthorizedAccess: true},
	}
}

// Unauthorized reports whether the entry records a denied operation.
func (e Entry) Unauthorized() bool {
	v, _ := e.Metadata[MetaUnauthorizedAccess].(bool)
	return v
}

func (e Entry) clone() Entry {
	e.Metadata = maps.Clone(e.Metadata)
	return e
}
