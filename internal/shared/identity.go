package shared

// Role is the privilege level granted to an authenticated user.
type Role string

const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// Identity is the user record kept in the session after a CAS login.
type Identity struct {
	UID        string         `json:"uid"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Role       Role           `json:"role"`
}

// IsManager reports whether the identity may use manager routes.
func (i *Identity) IsManager() bool {
	return i != nil && (i.Role == RoleManager || i.Role == RoleAdmin)
}

// IsAdmin reports whether the identity may use admin-only routes.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}
