package auth

// Roles a provisioned user may hold.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// Action is an operation a caller wants to perform.
type Action string

const (
	ActionDeploy          Action = "deploy"
	ActionRollback        Action = "rollback"
	ActionView            Action = "view"
	ActionManageTemplates Action = "manage-templates"
	ActionViewConfig      Action = "view-config"
	ActionTestConfig      Action = "test-config"
)

// Caller identifies an authenticated user.
type Caller struct {
	Username string
	Role     string
}

// Gate approves or denies an action for a caller.
type Gate interface {
	Allow(caller Caller, action Action) bool
}

// RoleGate is the static role-to-action policy. Viewers read deployment
// state, operators additionally deploy and roll back, admins additionally
// manage templates and service configuration.
type RoleGate struct{}

var roleGrants = map[string]map[Action]bool{
	RoleViewer: {
		ActionView: true,
	},
	RoleOperator: {
		ActionView:     true,
		ActionDeploy:   true,
		ActionRollback: true,
	},
	RoleAdmin: {
		ActionView:            true,
		ActionDeploy:          true,
		ActionRollback:        true,
		ActionManageTemplates: true,
		ActionViewConfig:      true,
		ActionTestConfig:      true,
	},
}

func (RoleGate) Allow(caller Caller, action Action) bool {
	return roleGrants[caller.Role][action]
}
