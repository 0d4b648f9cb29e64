// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the auth-state
// and service layers from the hosted backend adapter.
package port

import (
	"context"
	"io"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
)

// IdentityProvider is the remote auth subsystem (sessions, users, OAuth).
type IdentityProvider interface {
	// SignUp returns a nil session when the project requires e-mail confirmation.
	SignUp(ctx context.Context, email, password string, data map[string]any) (*domain.Session, *domain.User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, error)
	ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*domain.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*domain.User, error)
	UpdateUser(ctx context.Context, accessToken string, attrs *domain.UserAttributes) (*domain.User, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	AuthorizeURL(provider, redirectTo, codeChallenge string) string
}

// UserDataStore reads and writes the rows the auth pipeline depends on.
// Getters return (nil, nil) / ("", nil) when the row does not exist.
type UserDataStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	UpsertProfile(ctx context.Context, profile *domain.Profile) (*domain.Profile, error)
	UpdateProfile(ctx context.Context, userID string, updates map[string]any) (*domain.Profile, error)

	GetRole(ctx context.Context, userID string) (string, error)
	UpdateRole(ctx context.Context, userID string, role domain.Role) error

	ListOwnedCompanies(ctx context.Context, userID string) ([]domain.Company, error)
	ListMemberships(ctx context.Context, userID string) ([]domain.Membership, error)
	CreateCompany(ctx context.Context, company *domain.Company) (*domain.Company, error)
	UpdateCompany(ctx context.Context, companyID string, updates map[string]any) (*domain.Company, error)
}

// MembershipStore manages company_user_roles rows.
type MembershipStore interface {
	GetCompany(ctx context.Context, companyID string) (*domain.Company, error)
	UpdateCompany(ctx context.Context, companyID string, updates map[string]any) (*domain.Company, error)
	ListMemberships(ctx context.Context, userID string) ([]domain.Membership, error)
	ListCompanyMembers(ctx context.Context, companyID string) ([]domain.Membership, error)
	GetMembership(ctx context.Context, companyID, userID string) (*domain.Membership, error)
	CreateMembership(ctx context.Context, m *domain.Membership) (*domain.Membership, error)
	UpdateMembershipStatus(ctx context.Context, membershipID string, status domain.MembershipStatus) error
	GetInvitation(ctx context.Context, token string) (*domain.Membership, error)
	AcceptInvitation(ctx context.Context, membershipID, userID string) error
}

// OpportunityStore manages opportunities rows.
type OpportunityStore interface {
	ListOpportunities(ctx context.Context, companyID, status string) ([]domain.Opportunity, error)
	GetOpportunity(ctx context.Context, id string) (*domain.Opportunity, error)
	CreateOpportunity(ctx context.Context, o *domain.Opportunity) (*domain.Opportunity, error)
	UpdateOpportunity(ctx context.Context, id string, updates map[string]any) (*domain.Opportunity, error)
	DeleteOpportunity(ctx context.Context, id string) error
}

// ApplicationStore manages applications rows.
type ApplicationStore interface {
	CreateApplication(ctx context.Context, a *domain.Application) (*domain.Application, error)
	GetApplication(ctx context.Context, id string) (*domain.Application, error)
	ListApplicationsByOpportunity(ctx context.Context, opportunityID string) ([]domain.Application, error)
	ListApplicationsByUser(ctx context.Context, userID string) ([]domain.Application, error)
	UpdateApplicationStatus(ctx context.Context, id, status string) error
}

// NotificationStore manages notifications rows.
type NotificationStore interface {
	ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) error
}

// MessagingStore manages conversations and messages rows.
type MessagingStore interface {
	ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error)
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	FindConversation(ctx context.Context, userA, userB string) (*domain.Conversation, error)
	CreateConversation(ctx context.Context, c *domain.Conversation) (*domain.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
	CreateMessage(ctx context.Context, m *domain.Message) (*domain.Message, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID string) error
}

// MediaStorage uploads objects to a storage bucket.
type MediaStorage interface {
	// UploadFile stores body under a unique name below prefix, keeping the
	// extension of filename.
	UploadFile(ctx context.Context, bucket, prefix, filename, contentType string, body io.Reader) (publicURL string, err error)
}

// ChangeFeed delivers server-pushed row changes.
type ChangeFeed interface {
	// Subscribe calls fn for every matching change until the subscription
	// is closed or ctx is done.
	Subscribe(ctx context.Context, sub domain.ChangeSubscription, accessToken string, fn func(domain.ChangeEvent)) (FeedSubscription, error)
}

// FeedSubscription is one live ChangeFeed subscription.
type FeedSubscription interface {
	// SetAccessToken replaces the token of the live channel and of every rejoin.
	SetAccessToken(token string)
	Close()
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
