package auth

// Action is an operation a principal may perform. The set is closed; Resolve only ever grants
// values declared here.
type Action string

const (
	ActionProjectsRead     Action = "projects.read"
	ActionProjectsManage   Action = "projects.manage"
	ActionScopeManage      Action = "scope.manage"
	ActionTasksRead        Action = "tasks.read"
	ActionTasksUpdate      Action = "tasks.update"
	ActionDocumentsRead    Action = "documents.read"
	ActionDocumentsComment Action = "documents.comment"
	ActionDocumentsApprove Action = "documents.approve"
	ActionDocumentsUpload  Action = "documents.upload"
	ActionReportsSubmit    Action = "reports.submit"
	ActionPurchasingManage Action = "purchasing.manage"
	ActionUsersManage      Action = "users.manage"
	ActionProfileUpdate    Action = "profile.update"
)

// AllActions lists every declared action.
var AllActions = []Action{
	ActionProjectsRead,
	ActionProjectsManage,
	ActionScopeManage,
	ActionTasksRead,
	ActionTasksUpdate,
	ActionDocumentsRead,
	ActionDocumentsComment,
	ActionDocumentsApprove,
	ActionDocumentsUpload,
	ActionReportsSubmit,
	ActionPurchasingManage,
	ActionUsersManage,
	ActionProfileUpdate,
}

var (
	readOnlyActions = []Action{
		ActionProjectsRead,
		ActionTasksRead,
		ActionDocumentsRead,
		ActionProfileUpdate,
	}
	fieldActions = withActions(readOnlyActions,
		ActionTasksUpdate,
		ActionDocumentsUpload,
		ActionReportsSubmit,
	)
	projectLeadActions = withActions(fieldActions,
		ActionScopeManage,
		ActionDocumentsComment,
		ActionDocumentsApprove,
	)
)

// withActions returns a new slice; the package-level sets are never appended to in place.
func withActions(base []Action, extra ...Action) []Action {
	out := make([]Action, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}
