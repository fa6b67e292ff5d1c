package domain

// IsElevated reports whether a user holds the admin role. Elevated users
// bypass access-level checks and may see question solutions.
func IsElevated(user *User) bool {
	return user != nil && user.Role == RoleAdmin
}

// CanView reports whether a caller, possibly anonymous, may see that a
// contest exists. Normal contests are visible to everyone; VIP contests
// only to elevated or VIP users.
func CanView(level AccessLevel, user *User) bool {
	if level == AccessNormal {
		return true
	}
	return CanAccess(level, user)
}

// CanAccess gates join, submit, and leaderboard. Normal contests require
// any authenticated identity; VIP contests require an elevated or VIP user.
// An unknown access level denies everyone.
func CanAccess(level AccessLevel, user *User) bool {
	switch level {
	case AccessNormal:
		return user != nil
	case AccessVIP:
		return IsElevated(user) || (user != nil && user.Role == RoleVIP)
	default:
		return false
	}
}
