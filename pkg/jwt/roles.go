package jwt

// Role represents a user role for authorization decisions
type Role string

// Permission represents a fine-grained capability attached to a role
type Permission string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

const (
	PermReadCharacter   Permission = "character:read"
	PermWriteCharacter  Permission = "character:write"
	PermDeleteCharacter Permission = "character:delete"
	PermChat            Permission = "chat:turn"
	PermManageUsers     Permission = "users:manage"
)

// rolePermissions maps each role to the permissions it grants.
var rolePermissions = map[Role][]Permission{
	RoleAdmin: {PermReadCharacter, PermWriteCharacter, PermDeleteCharacter, PermChat, PermManageUsers},
	RoleUser:  {PermReadCharacter, PermWriteCharacter, PermDeleteCharacter, PermChat},
	RoleGuest: {PermReadCharacter},
}

// ValidRole reports whether the given role is one the system knows about
func ValidRole(role Role) bool {
	_, ok := rolePermissions[role]
	return ok
}

// HasRole checks whether the claims carry the given role. Admins satisfy
// every role check.
func (c *JWTClaims) HasRole(role Role) bool {
	if Role(c.Role) == RoleAdmin {
		return true
	}
	return Role(c.Role) == role
}

// HasPermission checks whether the claims' role grants the given permission
func (c *JWTClaims) HasPermission(permission Permission) bool {
	for _, p := range rolePermissions[Role(c.Role)] {
		if p == permission {
			return true
		}
	}
	return false
}
