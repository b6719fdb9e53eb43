package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	// RoleOperator runs campaigns: upload, export, read status.
	RoleOperator = "operator"
	// RoleAdmin additionally manages suppressions and the run journal.
	RoleAdmin = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }
