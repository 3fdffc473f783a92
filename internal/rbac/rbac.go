package rbac

type Role string
type Action string

const (
	RoleAnonymous Role = "anonymous"
	RoleMember    Role = "member"
	RoleStaff     Role = "staff"
)

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionSearch Action = "search"
	ActionAdmin  Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleStaff:
		return true
	case RoleMember:
		return action == ActionRead || action == ActionWrite || action == ActionSearch
	case RoleAnonymous:
		return action == ActionRead || action == ActionSearch
	default:
		return false
	}
}

// For maps an account onto its role. userID zero is anonymous.
func For(userID int64, staff bool) Role {
	switch {
	case userID == 0:
		return RoleAnonymous
	case staff:
		return RoleStaff
	default:
		return RoleMember
	}
}
