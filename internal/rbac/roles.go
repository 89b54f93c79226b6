package rbac

// Role names. Keep these stable; they are carried in session tokens.
const (
	// RoleOwner may change shop configuration such as team phones.
	RoleOwner = "owner"
	// RoleStaff works the inbox and call list.
	RoleStaff = "staff"
)

func IsOwner(role string) bool { return role == RoleOwner }

func Known(role string) bool { return role == RoleOwner || role == RoleStaff }
