package model

import "errors"

// Provider is a sign-up method supported by the accounts service.
type Provider string

const (
	ProviderPassword    Provider = "password"
	ProviderPhoneNumber Provider = "phone_number"
	ProviderGoogle      Provider = "google"
	ProviderFacebook    Provider = "facebook"
)

// Providers lists the sign-up methods in display order.
var Providers = []Provider{ProviderPassword, ProviderPhoneNumber, ProviderGoogle, ProviderFacebook}

func (p Provider) String() string {
	return string(p)
}

// Social reports whether p signs up through a third-party identity provider.
func (p Provider) Social() bool {
	return p == ProviderGoogle || p == ProviderFacebook
}

// SocialProviders returns the social providers of Providers, in order.
func SocialProviders() []Provider {
	social := make([]Provider, 0, len(Providers))
	for _, p := range Providers {
		if p.Social() {
			social = append(social, p)
		}
	}
	return social
}

// SignInRequest is the sign-in form.
type SignInRequest struct {
	Email    string `form:"email" json:"email" validate:"required,email"`
	Password string `form:"password" json:"password" validate:"required"`
}

// SignUpRequest is the sign-up form. ClientID comes from the page query.
type SignUpRequest struct {
	ClientID  string   `form:"client_id" json:"client_id"`
	Provider  Provider `form:"provider" json:"provider" validate:"omitempty,oneof=password phone_number google facebook"`
	FirstName string   `form:"first_name" json:"first_name" validate:"required,max=100"`
	LastName  string   `form:"last_name" json:"last_name" validate:"max=100"`
	Email     string   `form:"email" json:"email" validate:"required,email"`
	Password  string   `form:"password" json:"password" validate:"required"`
}

// EvaluatePasswordRequest is the body of the live checklist endpoint.
type EvaluatePasswordRequest struct {
	Password string `json:"password" form:"password"`
}

// Auth errors
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrWeakPassword        = errors.New("password does not satisfy the password policy")
	ErrUnsupportedProvider = errors.New("unsupported sign up provider")
)
