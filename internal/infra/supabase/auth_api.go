package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// GoTrue (auth/v1), implements port.IdentityProvider
// ============================================================

type gotrueUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (u *gotrueUser) toDomain() *domain.User {
	return &domain.User{ID: u.ID, Email: u.Email, Metadata: u.UserMetadata}
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	User         *gotrueUser `json:"user"`
}

func (t *tokenResponse) toSession() *domain.Session {
	if t.AccessToken == "" {
		return nil
	}
	expiresAt := time.Unix(t.ExpiresAt, 0)
	if t.ExpiresAt == 0 {
		expiresAt = time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	s := &domain.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		ExpiresAt:    expiresAt,
	}
	if t.User != nil {
		s.User = *t.User.toDomain()
	}
	return s
}

func (c *Client) authURL(path string) string {
	return fmt.Sprintf("%s/auth/v1/%s", c.baseURL, path)
}

// authCall sends a GoTrue request authorized with bearer (anon key when empty).
func (c *Client) authCall(ctx context.Context, op, method, path string, payload any, bearer string) ([]byte, error) {
	if bearer == "" {
		bearer = c.apiKey
	}
	var body []byte
	err := c.execute(ctx, "auth/"+op, func() error {
		var reader io.Reader
		if payload != nil {
			raw, err := json.Marshal(payload)
			if err != nil {
				return err
			}
			reader = bytes.NewReader(raw)
		}
		resp, err := c.send(ctx, method, c.authURL(path), reader, map[string]string{"Authorization": "Bearer " + bearer})
		body = resp
		return err
	})
	return body, err
}

func (c *Client) tokenGrant(ctx context.Context, grant string, payload map[string]string) (*domain.Session, error) {
	body, err := c.authCall(ctx, "token", http.MethodPost, "token?grant_type="+grant, payload, "")
	if err != nil {
		return nil, err
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	session := tr.toSession()
	if session == nil {
		return nil, &domain.ErrUnauthorized{Message: "Sesión no válida"}
	}
	return session, nil
}

// SignUp registers a user. With e-mail confirmation enabled the answer
// carries only the user and the returned session is nil.
func (c *Client) SignUp(ctx context.Context, email, password string, data map[string]any) (*domain.Session, *domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SignUp")
	defer span.End()

	body, err := c.authCall(ctx, "signup", http.MethodPost, "signup", map[string]any{
		"email":    email,
		"password": password,
		"data":     data,
	}, "")
	if err != nil {
		return nil, nil, err
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, nil, fmt.Errorf("decode signup response: %w", err)
	}
	if session := tr.toSession(); session != nil {
		return session, &session.User, nil
	}

	var u gotrueUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, nil, fmt.Errorf("decode signup user: %w", err)
	}
	c.logger.Info("supabase: signup pending e-mail confirmation", zap.String("user_id", u.ID))
	return nil, u.toDomain(), nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SignInWithPassword")
	defer span.End()

	return c.tokenGrant(ctx, "password", map[string]string{"email": email, "password": password})
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, error) {
	ctx, span := tracer.Start(ctx, "Supabase.RefreshSession")
	defer span.End()

	return c.tokenGrant(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

// ExchangeCode completes an OAuth PKCE flow.
func (c *Client) ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*domain.Session, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ExchangeCode")
	defer span.End()

	return c.tokenGrant(ctx, "pkce", map[string]string{"auth_code": authCode, "code_verifier": codeVerifier})
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	ctx, span := tracer.Start(ctx, "Supabase.SignOut")
	defer span.End()

	_, err := c.authCall(ctx, "logout", http.MethodPost, "logout", nil, accessToken)
	return err
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUser")
	defer span.End()

	body, err := c.authCall(ctx, "user", http.MethodGet, "user", nil, accessToken)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, &domain.ErrUnauthorized{Message: "Sesión no válida"}
	}
	var u gotrueUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return u.toDomain(), nil
}

func (c *Client) UpdateUser(ctx context.Context, accessToken string, attrs *domain.UserAttributes) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateUser")
	defer span.End()

	body, err := c.authCall(ctx, "user", http.MethodPut, "user", attrs, accessToken)
	if err != nil {
		return nil, err
	}
	var u gotrueUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return u.toDomain(), nil
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	ctx, span := tracer.Start(ctx, "Supabase.ResetPasswordForEmail")
	defer span.End()

	path := "recover"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	_, err := c.authCall(ctx, "recover", http.MethodPost, path, map[string]string{"email": email}, "")
	return err
}

// AuthorizeURL builds the provider redirect for an OAuth PKCE sign-in.
func (c *Client) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	q := url.Values{}
	q.Set("provider", provider)
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", "s256")
	return c.authURL("authorize?" + q.Encode())
}

// Health pings GoTrue; used by the readiness endpoint.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.authCall(ctx, "health", http.MethodGet, "health", nil, "")
	return err
}
