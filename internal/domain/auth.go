package domain

import "time"

// ============================================================
// Auth events
// ============================================================

// AuthEvent names a change of the auth session.
type AuthEvent string

const (
	EventInitialSession   AuthEvent = "INITIAL_SESSION"
	EventSignedIn         AuthEvent = "SIGNED_IN"
	EventSignedOut        AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed   AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated      AuthEvent = "USER_UPDATED"
	EventPasswordRecovery AuthEvent = "PASSWORD_RECOVERY"
)

// AuthChange is delivered to auth-state subscribers.
type AuthChange struct {
	Event     AuthEvent
	Session   *Session
	IsInitial bool
}

// Metadata keys written on the auth user.
const (
	MetaUserType         = "user_type"
	MetaOriginalUserType = "original_user_type"
	MetaFullName         = "full_name"
)

// UserAttributes is the body of an auth user update.
type UserAttributes struct {
	Email    string         `json:"email,omitempty"`
	Password string         `json:"password,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// ============================================================
// Auth state snapshot
// ============================================================

// AuthSnapshot is the observable state of one client's auth store.
type AuthSnapshot struct {
	User            *User     `json:"user"`
	Session         *Session  `json:"-"`
	Profile         *Profile  `json:"profile"`
	Company         *Company  `json:"company"`
	UserRole        Role      `json:"userRole"`
	UserCompanies   []Company `json:"userCompanies"`
	ActiveCompanyID string    `json:"activeCompanyId,omitempty"`
	IsAuthenticated bool      `json:"isAuthenticated"`
	IsLoading       bool      `json:"isLoading"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// UserData is what the user-data fetcher resolves for a user id.
type UserData struct {
	Profile *Profile
	Role    Role
	Company *Company
	// Companies holds owned companies plus accepted memberships.
	Companies []Company
}

// ============================================================
// Request / Response types
// ============================================================

// SignUpRequest is the body for POST /v1/auth/signup.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	UserType string `json:"userType"`
}

// SignInRequest is the body for POST /v1/auth/signin.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OAuthStartRequest is the body for POST /v1/auth/oauth/start.
type OAuthStartRequest struct {
	Provider   string `json:"provider"`
	UserType   string `json:"userType,omitempty"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

// OAuthStartResponse carries the provider authorize URL.
type OAuthStartResponse struct {
	URL string `json:"url"`
}

// PasswordResetRequest is the body for POST /v1/auth/password/reset.
type PasswordResetRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

// PasswordUpdateRequest is the body for PUT /v1/auth/password.
type PasswordUpdateRequest struct {
	Password string `json:"password"`
}

// SwitchUserTypeRequest is the body for POST /v1/user-type.
type SwitchUserTypeRequest struct {
	UserType string `json:"userType"`
}

// SignOutResponse tells the browser where to go after sign-out.
type SignOutResponse struct {
	RedirectTo string `json:"redirectTo"`
}

// UpdateProfileRequest is the body for PUT /v1/profile.
type UpdateProfileRequest struct {
	FullName *string `json:"full_name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Country  *string `json:"country,omitempty"`
	City     *string `json:"city,omitempty"`
}

// CompanyRequest is the body for company create/update.
type CompanyRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Website     *string `json:"website,omitempty"`
	Industry    *string `json:"industry,omitempty"`
	Size        *string `json:"size,omitempty"`
	Country     *string `json:"country,omitempty"`
	City        *string `json:"city,omitempty"`
}

// SwitchCompanyRequest is the body for PUT /v1/companies/active.
type SwitchCompanyRequest struct {
	CompanyID string `json:"companyId"`
}

// SignUpResponse reports the created user. ConfirmationRequired is true
// when the project sends a confirmation e-mail before issuing a session.
type SignUpResponse struct {
	User                 *User `json:"user"`
	ConfirmationRequired bool  `json:"confirmationRequired"`
}

// SwitchUserTypeResponse carries the new role and the route to land on.
type SwitchUserTypeResponse struct {
	UserRole   Role   `json:"userRole"`
	RedirectTo string `json:"redirectTo"`
}
