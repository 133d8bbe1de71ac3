package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	PurposeAccess        = "access"
	PurposePasswordReset = "password_reset"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	jwt.RegisteredClaims
	Role    string `json:"role,omitempty"`
	Email   string `json:"email,omitempty"`
	Purpose string `json:"purpose"`
}

// TokenIssuer signs and verifies HS256 tokens for a single purpose. Access
// tokens and password reset tokens use separate issuers and keys.
type TokenIssuer struct {
	key     []byte
	issuer  string
	ttl     time.Duration
	purpose string
	now     func() time.Time
}

func NewTokenIssuer(key []byte, issuer string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{key: key, issuer: issuer, ttl: ttl, purpose: PurposeAccess, now: time.Now}
}

func NewResetTokenIssuer(key []byte, issuer string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{key: key, issuer: issuer, ttl: ttl, purpose: PurposePasswordReset, now: time.Now}
}

func (i *TokenIssuer) TTL() time.Duration { return i.ttl }

// Issue signs a token for subject. The returned claims carry the generated jti
// and expiry.
func (i *TokenIssuer) Issue(subject uuid.UUID, role, email string) (string, *Claims, error) {
	now := i.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Role:    role,
		Email:   email,
		Purpose: i.purpose,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Parse verifies signature, expiry, issuer and purpose.
func (i *TokenIssuer) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return i.key, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != i.purpose {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Actor converts verified access claims into an Actor.
func (c *Claims) Actor() (Actor, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return Actor{}, ErrInvalidToken
	}
	a := Actor{UserID: id, Role: c.Role, TokenID: c.ID}
	if c.ExpiresAt != nil {
		a.ExpiresAt = c.ExpiresAt.Time
	}
	return a, nil
}
