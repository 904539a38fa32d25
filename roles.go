package talyn

// Role is the product-level role carried on a profile.
type Role string

const (
	// RoleEmployer manages an organization: payroll, benefits, compliance.
	RoleEmployer Role = "employer"
	// RoleCandidate views their own payroll, benefits, time off, documents.
	RoleCandidate Role = "candidate"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleEmployer, RoleCandidate:
		return true
	default:
		return false
	}
}

// IsEmployer reports whether the role gets the employer surfaces
// (dashboard, onboarding flow, organization management).
func (r Role) IsEmployer() bool {
	return r == RoleEmployer
}

// ParseRole safely parses a string into a Role type
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}
