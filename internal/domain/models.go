// Package domain defines the core entities of the marketplace BFF.
// These models mirror rows of the hosted database and the auth session;
// none of them is owned locally.
package domain

import "time"

// ============================================================
// Identity
// ============================================================

// User is the remote identity record issued by the auth service.
type User struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata,omitempty"`
}

// MetadataString returns a string value from the user metadata, or "".
func (u *User) MetadataString(key string) string {
	if u == nil || u.Metadata == nil {
		return ""
	}
	v, _ := u.Metadata[key].(string)
	return v
}

// Session proves an authenticated principal to the remote API.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Expired reports whether the access token is expired at now, with leeway.
func (s *Session) Expired(now time.Time, leeway time.Duration) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.After(now.Add(leeway))
}

// ============================================================
// Profile / Company
// ============================================================

// Profile is one-to-one with User.
type Profile struct {
	ID           string    `json:"id"`
	FullName     string    `json:"full_name"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	VideoURL     string    `json:"video_url,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Country      string    `json:"country,omitempty"`
	City         string    `json:"city,omitempty"`
	Completeness int       `json:"profile_completeness"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// ComputeCompleteness returns the percentage of filled profile fields.
func (p *Profile) ComputeCompleteness() int {
	fields := []string{p.FullName, p.AvatarURL, p.Phone, p.Country, p.City, p.VideoURL}
	filled := 0
	for _, f := range fields {
		if f != "" {
			filled++
		}
	}
	return filled * 100 / len(fields)
}

// Company is owned by a User or linked to it through a Membership.
type Company struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Website     string    `json:"website,omitempty"`
	Industry    string    `json:"industry,omitempty"`
	Size        string    `json:"size,omitempty"`
	Country     string    `json:"country,omitempty"`
	City        string    `json:"city,omitempty"`
	LogoURL     string    `json:"logo_url,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// MembershipRole is the role of a user inside a company.
type MembershipRole string

const (
	MembershipOwner  MembershipRole = "owner"
	MembershipAdmin  MembershipRole = "admin"
	MembershipViewer MembershipRole = "viewer"
)

// MembershipStatus is the approval status of a membership.
type MembershipStatus string

const (
	MembershipPending  MembershipStatus = "pending"
	MembershipAccepted MembershipStatus = "accepted"
	MembershipDeclined MembershipStatus = "declined"
)

// Membership links a User to a Company (company_user_roles row).
type Membership struct {
	ID              string           `json:"id"`
	CompanyID       string           `json:"company_id"`
	UserID          string           `json:"user_id,omitempty"`
	Role            MembershipRole   `json:"role"`
	Status          MembershipStatus `json:"status"`
	InvitedEmail    string           `json:"invited_email,omitempty"`
	InvitationToken string           `json:"invitation_token,omitempty"`
	AcceptedAt      *time.Time       `json:"accepted_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at,omitempty"`
	Company         *Company         `json:"companies,omitempty"`
}

// CanManage reports whether the membership may approve or decline others.
func (m *Membership) CanManage() bool {
	return m.Status == MembershipAccepted && (m.Role == MembershipOwner || m.Role == MembershipAdmin)
}

// ============================================================
// Marketplace records (pass-through)
// ============================================================

// Opportunity is a job/project posted by a company.
type Opportunity struct {
	ID                  string     `json:"id"`
	CompanyID           string     `json:"company_id"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	CategoryID          *string    `json:"category_id,omitempty"`
	SecondaryCategoryID *string    `json:"secondary_category_id,omitempty"`
	Location            string     `json:"location,omitempty"`
	Type                string     `json:"type,omitempty"`
	SalaryMin           *float64   `json:"salary_min,omitempty"`
	SalaryMax           *float64   `json:"salary_max,omitempty"`
	Currency            string     `json:"currency,omitempty"`
	Skills              []string   `json:"skills,omitempty"`
	Status              string     `json:"status"`
	Deadline            *time.Time `json:"deadline,omitempty"`
	CreatedAt           time.Time  `json:"created_at,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at,omitempty"`
}

// Opportunity statuses.
const (
	OpportunityDraft  = "draft"
	OpportunityActive = "active"
	OpportunityClosed = "closed"
)

// Application is a talent applying to an Opportunity.
type Application struct {
	ID            string    `json:"id"`
	OpportunityID string    `json:"opportunity_id"`
	UserID        string    `json:"user_id"`
	CoverLetter   string    `json:"cover_letter,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// Application statuses.
const (
	ApplicationPending  = "pending"
	ApplicationReviewed = "reviewed"
	ApplicationAccepted = "accepted"
	ApplicationRejected = "rejected"
)

// ValidApplicationStatus reports whether s is a known application status.
func ValidApplicationStatus(s string) bool {
	switch s {
	case ApplicationPending, ApplicationReviewed, ApplicationAccepted, ApplicationRejected:
		return true
	}
	return false
}

// Notification belongs to a user.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Read      bool           `json:"read"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Conversation is a thread between two users.
type Conversation struct {
	ID             string     `json:"id"`
	Participant1ID string     `json:"participant1_id"`
	Participant2ID string     `json:"participant2_id"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at,omitempty"`
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.Participant1ID == userID || c.Participant2ID == userID
}

// Message belongs to a Conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}
