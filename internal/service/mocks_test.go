package service_test

import (
	"context"
	"fmt"
	"io"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/kv"
)

// --- Account ---

type fakeAccount struct {
	snap      domain.AuthSnapshot
	ns        *kv.Namespace
	created   []*domain.CompanyRequest
	patches   []map[string]any
	refetches int
}

func newAccount(role domain.Role, companies ...domain.Company) *fakeAccount {
	a := &fakeAccount{
		snap: domain.AuthSnapshot{
			User:            &domain.User{ID: "u1", Email: "ana@example.com"},
			Profile:         &domain.Profile{ID: "u1"},
			UserRole:        role,
			UserCompanies:   companies,
			IsAuthenticated: true,
		},
		ns: kv.NewNamespace(kv.NewMemory(), "client-1"),
	}
	if len(companies) > 0 {
		c := companies[0]
		a.snap.Company = &c
		a.snap.ActiveCompanyID = c.ID
	}
	return a
}

func anonymous() *fakeAccount {
	return &fakeAccount{ns: kv.NewNamespace(kv.NewMemory(), "client-1")}
}

func (a *fakeAccount) Snapshot() domain.AuthSnapshot { return a.snap }
func (a *fakeAccount) Namespace() *kv.Namespace      { return a.ns }
func (a *fakeAccount) Refetch()                      { a.refetches++ }

func (a *fakeAccount) CreateCompany(ctx context.Context, req *domain.CompanyRequest) (*domain.Company, error) {
	a.created = append(a.created, req)
	return &domain.Company{ID: "new-co", UserID: a.snap.User.ID, Name: *req.Name}, nil
}

func (a *fakeAccount) PatchProfile(ctx context.Context, updates map[string]any) (*domain.Profile, error) {
	a.patches = append(a.patches, updates)
	p := *a.snap.Profile
	if v, ok := updates["avatar_url"].(string); ok {
		p.AvatarURL = v
	}
	if v, ok := updates["video_url"].(string); ok {
		p.VideoURL = v
	}
	if v, ok := updates["city"].(string); ok {
		p.City = v
	}
	return &p, nil
}

// --- Membership store ---

type mockMemberships struct {
	companies   map[string]*domain.Company
	memberships []domain.Membership
	invitations map[string]*domain.Membership
	createErr   error
	acceptErr   error
	statuses    map[string]domain.MembershipStatus
	accepted    []string
}

func newMockMemberships() *mockMemberships {
	return &mockMemberships{
		companies:   map[string]*domain.Company{},
		invitations: map[string]*domain.Membership{},
		statuses:    map[string]domain.MembershipStatus{},
	}
}

func (m *mockMemberships) GetCompany(_ context.Context, id string) (*domain.Company, error) {
	return m.companies[id], nil
}

func (m *mockMemberships) UpdateCompany(_ context.Context, id string, updates map[string]any) (*domain.Company, error) {
	c := m.companies[id]
	if c == nil {
		return nil, &domain.ErrNotFound{Resource: "company", ID: id}
	}
	if v, ok := updates["logo_url"].(string); ok {
		c.LogoURL = v
	}
	return c, nil
}

func (m *mockMemberships) ListMemberships(_ context.Context, userID string) ([]domain.Membership, error) {
	var out []domain.Membership
	for _, ms := range m.memberships {
		if ms.UserID == userID {
			out = append(out, ms)
		}
	}
	return out, nil
}

func (m *mockMemberships) ListCompanyMembers(_ context.Context, companyID string) ([]domain.Membership, error) {
	var out []domain.Membership
	for _, ms := range m.memberships {
		if ms.CompanyID == companyID {
			out = append(out, ms)
		}
	}
	return out, nil
}

func (m *mockMemberships) GetMembership(_ context.Context, companyID, userID string) (*domain.Membership, error) {
	for i := range m.memberships {
		if m.memberships[i].CompanyID == companyID && m.memberships[i].UserID == userID {
			ms := m.memberships[i]
			return &ms, nil
		}
	}
	return nil, nil
}

func (m *mockMemberships) CreateMembership(_ context.Context, ms *domain.Membership) (*domain.Membership, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	created := *ms
	created.ID = fmt.Sprintf("m-%d", len(m.memberships)+1)
	m.memberships = append(m.memberships, created)
	return &created, nil
}

func (m *mockMemberships) UpdateMembershipStatus(_ context.Context, id string, status domain.MembershipStatus) error {
	m.statuses[id] = status
	return nil
}

func (m *mockMemberships) GetInvitation(_ context.Context, token string) (*domain.Membership, error) {
	return m.invitations[token], nil
}

func (m *mockMemberships) AcceptInvitation(_ context.Context, membershipID, userID string) error {
	if m.acceptErr != nil {
		return m.acceptErr
	}
	m.accepted = append(m.accepted, membershipID+":"+userID)
	return nil
}

// --- Media storage ---

type mockMedia struct {
	uploads []string
	err     error
}

func (m *mockMedia) UploadFile(_ context.Context, bucket, prefix, filename, contentType string, body io.Reader) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	_, _ = io.ReadAll(body)
	path := bucket + "/" + prefix + "/" + filename
	m.uploads = append(m.uploads, path)
	return "https://cdn.example.com/" + path, nil
}

// --- Opportunity / application store ---

type mockMarketplace struct {
	opportunities map[string]*domain.Opportunity
	applications  map[string]*domain.Application

	createOppErrs []error
	createOppArgs []domain.Opportunity
	createAppErr  error
	statusUpdates map[string]string
}

func newMockMarketplace() *mockMarketplace {
	return &mockMarketplace{
		opportunities: map[string]*domain.Opportunity{},
		applications:  map[string]*domain.Application{},
		statusUpdates: map[string]string{},
	}
}

func (m *mockMarketplace) ListOpportunities(_ context.Context, companyID, status string) ([]domain.Opportunity, error) {
	var out []domain.Opportunity
	for _, o := range m.opportunities {
		if (companyID == "" || o.CompanyID == companyID) && (status == "" || o.Status == status) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockMarketplace) GetOpportunity(_ context.Context, id string) (*domain.Opportunity, error) {
	o, ok := m.opportunities[id]
	if !ok {
		return nil, nil
	}
	c := *o
	return &c, nil
}

func (m *mockMarketplace) CreateOpportunity(_ context.Context, o *domain.Opportunity) (*domain.Opportunity, error) {
	m.createOppArgs = append(m.createOppArgs, *o)
	if len(m.createOppErrs) > 0 {
		err := m.createOppErrs[0]
		m.createOppErrs = m.createOppErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	created := *o
	created.ID = fmt.Sprintf("opp-%d", len(m.opportunities)+1)
	m.opportunities[created.ID] = &created
	return &created, nil
}

func (m *mockMarketplace) UpdateOpportunity(_ context.Context, id string, updates map[string]any) (*domain.Opportunity, error) {
	o, ok := m.opportunities[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "opportunity", ID: id}
	}
	if v, ok := updates["status"].(string); ok {
		o.Status = v
	}
	if v, ok := updates["title"].(string); ok {
		o.Title = v
	}
	c := *o
	return &c, nil
}

func (m *mockMarketplace) DeleteOpportunity(_ context.Context, id string) error {
	delete(m.opportunities, id)
	return nil
}

func (m *mockMarketplace) CreateApplication(_ context.Context, a *domain.Application) (*domain.Application, error) {
	if m.createAppErr != nil {
		return nil, m.createAppErr
	}
	created := *a
	created.ID = fmt.Sprintf("app-%d", len(m.applications)+1)
	m.applications[created.ID] = &created
	return &created, nil
}

func (m *mockMarketplace) GetApplication(_ context.Context, id string) (*domain.Application, error) {
	a, ok := m.applications[id]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

func (m *mockMarketplace) ListApplicationsByOpportunity(_ context.Context, opportunityID string) ([]domain.Application, error) {
	var out []domain.Application
	for _, a := range m.applications {
		if a.OpportunityID == opportunityID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockMarketplace) ListApplicationsByUser(_ context.Context, userID string) ([]domain.Application, error) {
	var out []domain.Application
	for _, a := range m.applications {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockMarketplace) UpdateApplicationStatus(_ context.Context, id, status string) error {
	m.statusUpdates[id] = status
	return nil
}

// --- Notifications ---

type mockNotifications struct {
	list      []domain.Notification
	listCalls int
	marked    []string
}

func (m *mockNotifications) ListNotifications(_ context.Context, userID string, limit int) ([]domain.Notification, error) {
	m.listCalls++
	return m.list, nil
}

func (m *mockNotifications) MarkNotificationRead(_ context.Context, userID, id string) error {
	m.marked = append(m.marked, id)
	for i := range m.list {
		if m.list[i].ID == id {
			m.list[i].Read = true
		}
	}
	return nil
}

func (m *mockNotifications) MarkAllNotificationsRead(_ context.Context, userID string) error {
	m.marked = append(m.marked, "*")
	for i := range m.list {
		m.list[i].Read = true
	}
	return nil
}

// --- Messaging ---

type mockMessaging struct {
	conversations map[string]*domain.Conversation
	messages      []domain.Message
	createErr     error
	readMarks     []string
}

func newMockMessaging() *mockMessaging {
	return &mockMessaging{conversations: map[string]*domain.Conversation{}}
}

func (m *mockMessaging) ListConversations(_ context.Context, userID string) ([]domain.Conversation, error) {
	var out []domain.Conversation
	for _, c := range m.conversations {
		if c.HasParticipant(userID) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockMessaging) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	return m.conversations[id], nil
}

func (m *mockMessaging) FindConversation(_ context.Context, a, b string) (*domain.Conversation, error) {
	for _, c := range m.conversations {
		if c.HasParticipant(a) && c.HasParticipant(b) {
			return c, nil
		}
	}
	return nil, nil
}

func (m *mockMessaging) CreateConversation(_ context.Context, c *domain.Conversation) (*domain.Conversation, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	created := *c
	created.ID = fmt.Sprintf("conv-%d", len(m.conversations)+1)
	m.conversations[created.ID] = &created
	return &created, nil
}

func (m *mockMessaging) ListMessages(_ context.Context, conversationID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *mockMessaging) CreateMessage(_ context.Context, msg *domain.Message) (*domain.Message, error) {
	created := *msg
	created.ID = fmt.Sprintf("msg-%d", len(m.messages)+1)
	m.messages = append(m.messages, created)
	return &created, nil
}

func (m *mockMessaging) MarkConversationRead(_ context.Context, conversationID, readerID string) error {
	m.readMarks = append(m.readMarks, conversationID+":"+readerID)
	return nil
}
