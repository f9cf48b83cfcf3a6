package model

// Roles a dashboard user may hold.
const (
	RoleAdmin      = "admin"
	RoleUser       = "user"
	RoleEnterprise = "enterprise"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r string) bool {
	switch r {
	case RoleAdmin, RoleUser, RoleEnterprise:
		return true
	}
	return false
}

// User represents a dashboard account as stored in the `users` table.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Username     – unique display name.
//  Email        – unique login address.
//  PasswordHash – bcrypt hashed password.
//  Role         – admin, user or enterprise.
type User struct {
	ID           uint64 `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the token is stored.  Times are unix seconds.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	ExpiresAt int64
	RevokedAt *int64
}

// Session is the request-scoped identity of a logged-in dashboard user.  It
// is extracted once by the session middleware and handed to every
// admin-gated operation explicitly.
type Session struct {
	UserID   uint64 `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// IsAdmin reports whether the session carries the admin role.
func (s Session) IsAdmin() bool { return s.Role == RoleAdmin }
