package authcore

// mfaRequiredRoles lists the roles that must present a second factor on
// every login. All other roles may enroll voluntarily.
var mfaRequiredRoles = map[string]bool{
	RoleAdministrator: true,
	RoleUnderwriter:   true,
	RoleBroker:        true,
}

// MFARequiredForRole reports whether the platform mandates a second factor
// for role. This is policy only; whether a given account can actually
// complete a challenge depends on its enrollment state.
func MFARequiredForRole(role string) bool {
	return mfaRequiredRoles[role]
}
