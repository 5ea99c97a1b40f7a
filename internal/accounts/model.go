package accounts

import "strings"

// Role gates access to the admin panel.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// ParseRole accepts ADMIN or USER in any case. Empty defaults to USER.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", string(RoleUser):
		return RoleUser, true
	case string(RoleAdmin):
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Account is a portal login. Usernames are phone numbers in practice and are
// compared case-sensitively.
type Account struct {
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
	Role         Role   `json:"role"`
	IsBlocked    bool   `json:"isBlocked"`
}
