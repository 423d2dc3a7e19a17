// Package auth mints and verifies session credentials. The issuer is
// configured once at process start and injected; there is no package-level
// state.
package auth

import (
	"fmt"
	"time"

	"github.com/gartstein/tenancy/internal/tenancy/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind distinguishes the two credentials minted per switch/login.
type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

// Config holds signing settings, loaded from configuration at startup.
type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Claims is the claim set embedded in every session credential. The company
// id pins the session to the user's primary company.
type Claims struct {
	UserID    uuid.UUID
	Email     string
	Role      models.Role
	CompanyID uuid.UUID
}

// Issuer signs session credentials with HS256.
type Issuer struct {
	cfg Config
}

func NewIssuer(cfg Config) *Issuer {
	return &Issuer{cfg: cfg}
}

// Mint signs a credential of the given kind for the claim set.
func (i *Issuer) Mint(kind TokenKind, c Claims) (string, error) {
	ttl := i.cfg.AccessTTL
	if kind == RefreshToken {
		ttl = i.cfg.RefreshTTL
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":        c.UserID.String(),
		"email":      c.Email,
		"role":       string(c.Role),
		"company_id": c.CompanyID.String(),
		"typ":        string(kind),
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
		"iss":        i.cfg.Issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(i.cfg.Secret))
}

// Access mints an access token.
func (i *Issuer) Access(c Claims) (string, error) {
	return i.Mint(AccessToken, c)
}

// Refresh mints a refresh token.
func (i *Issuer) Refresh(c Claims) (string, error) {
	return i.Mint(RefreshToken, c)
}

// ParseAndVerify checks the token signature and returns parsed claims if
// valid. The excluded transport layer uses this to resolve the caller's
// active company.
func ParseAndVerify(tokenString, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token claims")
}
