package authsession

import (
	"fmt"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access-token claims issued by the auth service.
type Claims struct {
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// TokenVerifier checks access-token signatures with the project's JWT secret.
// Expiry is not enforced here; expired sessions are refreshed, not rejected.
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenVerifier returns nil for an empty secret, which disables verification.
func NewTokenVerifier(secret string) *TokenVerifier {
	if secret == "" {
		return nil
	}
	return &TokenVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithoutClaimsValidation(), jwt.WithValidMethods([]string{"HS256"})),
	}
}

// Verify parses the token and returns its claims.
func (v *TokenVerifier) Verify(token string) (*Claims, error) {
	parsed, err := v.parser.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "Sesión inválida"}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, &domain.ErrUnauthorized{Message: "Sesión inválida"}
	}
	return claims, nil
}

// Matches reports whether the token was issued for the session's user.
func (v *TokenVerifier) Matches(s *domain.Session) bool {
	if v == nil {
		return true
	}
	claims, err := v.Verify(s.AccessToken)
	if err != nil {
		return false
	}
	return claims.Subject == s.User.ID
}
