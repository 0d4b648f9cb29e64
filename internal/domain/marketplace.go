package domain

import "time"

// ============================================================
// Opportunities / applications
// ============================================================

// OpportunityRequest is the body for opportunity create/update and drafts.
type OpportunityRequest struct {
	Title               *string    `json:"title,omitempty"`
	Description         *string    `json:"description,omitempty"`
	CategoryID          *string    `json:"category_id,omitempty"`
	SecondaryCategoryID *string    `json:"secondary_category_id,omitempty"`
	Location            *string    `json:"location,omitempty"`
	Type                *string    `json:"type,omitempty"`
	SalaryMin           *float64   `json:"salary_min,omitempty"`
	SalaryMax           *float64   `json:"salary_max,omitempty"`
	Currency            *string    `json:"currency,omitempty"`
	Skills              []string   `json:"skills,omitempty"`
	Status              *string    `json:"status,omitempty"`
	Deadline            *time.Time `json:"deadline,omitempty"`
}

// ApplyRequest is the body for POST /v1/opportunities/{id}/applications.
type ApplyRequest struct {
	CoverLetter string `json:"cover_letter"`
}

// ApplicationStatusRequest is the body for PUT /v1/applications/{id}/status.
type ApplicationStatusRequest struct {
	Status string `json:"status"`
}

// ============================================================
// Notifications / messaging
// ============================================================

// UnreadCount is returned by GET /v1/notifications/unread-count.
type UnreadCount struct {
	Count int `json:"count"`
}

// StartConversationRequest is the body for POST /v1/conversations.
type StartConversationRequest struct {
	UserID string `json:"userId"`
}

// SendMessageRequest is the body for POST /v1/conversations/{id}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// ============================================================
// Onboarding / media
// ============================================================

// OnboardingState is the position and draft of one wizard flow.
type OnboardingState struct {
	Flow        string         `json:"flow"`
	Steps       []string       `json:"steps"`
	CurrentStep int            `json:"currentStep"`
	StepName    string         `json:"stepName"`
	Draft       map[string]any `json:"draft"`
}

// OnboardingResult reports what completing a flow produced.
type OnboardingResult struct {
	Company    *Company `json:"company,omitempty"`
	Profile    *Profile `json:"profile,omitempty"`
	RedirectTo string   `json:"redirectTo"`
}

// UploadResponse carries the public URL of an uploaded object.
type UploadResponse struct {
	URL string `json:"url"`
}
