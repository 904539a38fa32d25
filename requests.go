package talyn

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// LoginRequest payload
type LoginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	ExpectedRole Role   `json:"expected_role,omitempty"`
	RememberMe   bool   `json:"remember_me,omitempty"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

// SignUpMetadata travels with registration and seeds the server-side profile.
type SignUpMetadata struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Role        Role   `json:"role,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Country     string `json:"country,omitempty"`
}

// Validate will run validation rules
func (m SignUpMetadata) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(
			&m.Phone,
			validation.By(validPhone(m.Country)),
		),
	)
}

// SignUpRequest payload
type SignUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Metadata SignUpMetadata `json:"metadata,omitempty"`
}

// Validate will run validation rules
func (r SignUpRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(8, 0),
		),
		validation.Field(&r.Metadata),
	)
}

// OnboardingProfileRequest is employer onboarding step one: company details.
type OnboardingProfileRequest struct {
	CompanyName string `json:"company_name"`
	Industry    string `json:"industry,omitempty"`
	Headcount   string `json:"headcount,omitempty"`
	Country     string `json:"country"`
	Phone       string `json:"phone,omitempty"`
}

// Validate will run validation rules
func (r OnboardingProfileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.CompanyName,
			validation.Required,
		),
		validation.Field(
			&r.Country,
			validation.Required,
			is.CountryCode2,
		),
		validation.Field(
			&r.Phone,
			validation.By(validPhone(r.Country)),
		),
	)
}

// ServiceType is employer onboarding step two: which Talyn product line the
// organization signs up for.
type ServiceType string

const (
	ServiceEOR         ServiceType = "eor"
	ServicePayroll     ServiceType = "payroll"
	ServiceContractors ServiceType = "contractors"
)

// IsValid checks if the service type is one of the predefined values
func (s ServiceType) IsValid() bool {
	switch s {
	case ServiceEOR, ServicePayroll, ServiceContractors:
		return true
	default:
		return false
	}
}

func validPhone(region string) validation.RuleFunc {
	return func(value any) error {
		raw, _ := value.(string)
		if raw == "" {
			return nil
		}
		if region == "" {
			region = "US"
		}
		num, err := phonenumbers.Parse(raw, region)
		if err != nil {
			return fmt.Errorf("must be a valid phone number")
		}
		if !phonenumbers.IsValidNumber(num) {
			return fmt.Errorf("must be a valid phone number")
		}
		return nil
	}
}
