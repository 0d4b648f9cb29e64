package kv

import (
	"github.com/boddenberg/marketplace-bff-go/internal/domain"
)

// Documented client keys.
var (
	PendingUserType = NewKey[string]("pending_user_type", 1)
	ActiveCompanyID = NewKey[string]("activeCompanyId", 1)
	Session         = NewKey[domain.Session]("session", 1)
	OAuthVerifier   = NewKey[string]("oauth.verifier", 1)
	Notifications   = NewKey[[]domain.Notification]("notifications", 1)
)

// OnboardingStep returns the current-step key of a wizard flow.
func OnboardingStep(flow string) Key[int] {
	if flow == "talent" {
		return NewKey[int]("onboarding.currentStep", 1)
	}
	return NewKey[int](flow+"-onboarding.currentStep", 1)
}

// OnboardingDraft returns the draft key of a wizard flow.
func OnboardingDraft(flow string) Key[map[string]any] {
	return NewKey[map[string]any](flow+"-onboarding-draft", 1)
}

// OpportunityDraft returns the draft key of an opportunity ("new" for unsaved ones).
func OpportunityDraft(id string) Key[domain.Opportunity] {
	return NewKey[domain.Opportunity]("opportunity-draft-"+id, 1)
}
