package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stackhq/stack-api/internal/domain"
)

var errInvalidPayload = errors.New("invalid session payload")

type sessionClaims struct {
	UserID      string              `json:"id"`
	Permissions []domain.Permission `json:"permissions"`
	jwt.RegisteredClaims
}

// CookieCodec signs session payloads with HS256 so that a client cannot alter
// its id or permissions. Validity against the session store is checked
// elsewhere.
type CookieCodec struct {
	secret []byte
}

func NewCookieCodec(secret string) *CookieCodec {
	return &CookieCodec{secret: []byte(secret)}
}

func (c *CookieCodec) Encode(token domain.SessionToken) (string, error) {
	if token.UserID == "" {
		return "", fmt.Errorf("encode session cookie: %w", errInvalidPayload)
	}
	perms := token.Permissions
	if perms == nil {
		perms = []domain.Permission{}
	}
	claims := sessionClaims{
		UserID:      token.UserID,
		Permissions: perms,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Unix(token.IssuedAt, 0)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("encode session cookie: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and payload shape. Every failure is benign:
// a tampered or stale cookie is a client problem, not a server fault.
func (c *CookieCodec) Decode(raw string) (*domain.SessionToken, error) {
	claims := &sessionClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, domain.BenignWrap("Access denied. Invalid cookie.", err)
	}
	if !tok.Valid || claims.UserID == "" || claims.IssuedAt == nil {
		return nil, domain.BenignWrap("Access denied. Invalid cookie.", errInvalidPayload)
	}
	perms := claims.Permissions
	if perms == nil {
		perms = []domain.Permission{}
	}
	return &domain.SessionToken{
		UserID:      claims.UserID,
		Permissions: perms,
		IssuedAt:    claims.IssuedAt.Unix(),
	}, nil
}
