package talyn

import (
	"time"
)

// User is the server-issued identity record.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Profile carries the product role plus, for employers, onboarding progress.
// Fields are populated only from trusted server responses.
type Profile struct {
	ID                  string `json:"id,omitempty"`
	UserID              string `json:"user_id,omitempty"`
	Role                Role   `json:"role"`
	FirstName           string `json:"first_name,omitempty"`
	LastName            string `json:"last_name,omitempty"`
	Phone               string `json:"phone,omitempty"`
	Country             string `json:"country,omitempty"`
	OnboardingCompleted bool   `json:"onboarding_completed"`
	OnboardingStep      *int   `json:"onboarding_step,omitempty"`
}

// Organization is the tenant the current identity is bound to.
type Organization struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Logo    string `json:"logo,omitempty"`
	Country string `json:"country,omitempty"`
}

// Membership is the identity's row inside an Organization.
type Membership struct {
	ID         string     `json:"id"`
	OrgRole    string     `json:"role,omitempty"`
	JobTitle   string     `json:"job_title,omitempty"`
	Department string     `json:"department,omitempty"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	Status     string     `json:"status,omitempty"`
}

// Invitation is a not-yet-accepted organization-membership row offered to
// the current identity.
type Invitation struct {
	MemberID         string    `json:"member_id"`
	OrganizationName string    `json:"organization_name"`
	OrganizationLogo string    `json:"organization_logo,omitempty"`
	JobTitle         string    `json:"job_title,omitempty"`
	Department       string    `json:"department,omitempty"`
	InvitedAt        time.Time `json:"invited_at"`
}

// Affiliation captures whether the identity is bound to a tenant
// organization. Modeling it as a union keeps organization and membership
// together or absent together; no half-populated state is representable.
type Affiliation interface {
	affiliation()
}

// Unaffiliated is an identity with no organization. It may hold pending
// invitations waiting on an accept or decline.
type Unaffiliated struct {
	PendingInvitations []Invitation
}

// Affiliated binds the identity to one organization through its membership row.
type Affiliated struct {
	Organization Organization
	Membership   Membership
}

func (Unaffiliated) affiliation() {}
func (Affiliated) affiliation()   {}

// Session is an immutable snapshot of the store's state, handed to route
// guards and page components. Mutations go through Store operations only.
type Session struct {
	User            *User
	Profile         *Profile
	Affiliation     Affiliation
	IsAuthenticated bool
	IsLoading       bool
	Err             error
}

// Role returns the profile role, if a profile is present.
func (s Session) Role() (Role, bool) {
	if s.Profile == nil {
		return "", false
	}
	return s.Profile.Role, s.Profile.Role != ""
}

// Organization returns the bound organization, if affiliated.
func (s Session) Organization() (Organization, bool) {
	if aff, ok := s.Affiliation.(Affiliated); ok {
		return aff.Organization, true
	}
	return Organization{}, false
}

// Membership returns the membership row, if affiliated.
func (s Session) Membership() (Membership, bool) {
	if aff, ok := s.Affiliation.(Affiliated); ok {
		return aff.Membership, true
	}
	return Membership{}, false
}

// PendingInvitations returns outstanding invitations. Affiliated identities
// have none by construction.
func (s Session) PendingInvitations() []Invitation {
	if aff, ok := s.Affiliation.(Unaffiliated); ok {
		return aff.PendingInvitations
	}
	return nil
}

// OnboardingCompleted reports whether the employer finished onboarding.
// Always sourced from the latest fetched profile, never from the local
// step hint.
func (s Session) OnboardingCompleted() bool {
	return s.Profile != nil && s.Profile.OnboardingCompleted
}
