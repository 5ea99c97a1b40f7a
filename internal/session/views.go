package session

import "voterlist-backend/internal/accounts"

// View is a client route.
type View string

const (
	ViewLanding   View = "landing"
	ViewDashboard View = "dashboard"
	ViewAdmin     View = "admin"
)

// DefaultView is where a caller lands when no view is requested.
func DefaultView(authenticated bool) View {
	if authenticated {
		return ViewDashboard
	}
	return ViewLanding
}

// HomeView is the view shown right after login.
func HomeView(role accounts.Role) View {
	if role == accounts.RoleAdmin {
		return ViewAdmin
	}
	return ViewDashboard
}

// Resolve gates requested against the caller. Admin needs an authenticated
// ADMIN; dashboard needs any login. Anything else falls back to the default
// view with redirected set.
func Resolve(requested View, authenticated bool, role accounts.Role) (View, bool) {
	switch requested {
	case ViewAdmin:
		if authenticated && role == accounts.RoleAdmin {
			return ViewAdmin, false
		}
	case ViewDashboard:
		if authenticated {
			return ViewDashboard, false
		}
	case ViewLanding:
		if !authenticated {
			return ViewLanding, false
		}
	}
	return DefaultView(authenticated), true
}
