package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/tenant"
)

// Claims is the token payload. The active organization is baked in at
// issue time; switching organizations means a new token.
type Claims struct {
	jwt.RegisteredClaims
	OrganizationID string `json:"org"`
	SystemRole     string `json:"role"`
	OrgRole        string `json:"orgRole"`
}

// Tokens signs and verifies HS256 bearer tokens.
type Tokens struct {
	key []byte
	ttl time.Duration
}

func NewTokens(key string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{key: []byte(key), ttl: ttl}
}

// Issue signs a token for one user acting in one organization.
func (t *Tokens) Issue(userID, orgID string, sysRole models.SystemRole, orgRole models.OrgRole) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(t.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    "tracehub",
		},
		OrganizationID: orgID,
		SystemRole:     string(sysRole),
		OrgRole:        string(orgRole),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.KindInternal, "auth.issue_token", err)
	}
	return signed, exp, nil
}

// Verify parses a bearer token and rebuilds the tenant context it
// carries. Expired or tampered tokens map to an authentication error.
func (t *Tokens) Verify(raw string) (*tenant.Context, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer("tracehub"))
	if err != nil || !tok.Valid {
		return nil, apperr.New(apperr.KindAuthentication, "auth.verify_token", "invalid or expired token")
	}
	return tenant.ForUser(
		claims.Subject,
		claims.OrganizationID,
		models.SystemRole(claims.SystemRole),
		models.OrgRole(claims.OrgRole),
	), nil
}
