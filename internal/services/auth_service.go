package services

import (
	"context"
	"strconv"

	uniforme_errors "uniforme-api/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// Principal is the caller identity extracted from a bearer token. The
// attachment subsystem only uses ID, for created_by auditing.
type Principal struct {
	ID      int64
	Name    string
	Role    string
	Sector  string
	IsAdmin bool
}

func (p Principal) IDString() string {
	return strconv.FormatInt(p.ID, 10)
}

// Authenticator verifies bearer tokens issued by the login service.
type Authenticator interface {
	Verify(token string) (Principal, error)
}

// AccessClaims mirrors the payload signed by the login endpoint.
type AccessClaims struct {
	UserID  int64  `json:"id"`
	Name    string `json:"nome"`
	Role    string `json:"funcao"`
	Sector  string `json:"setor"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

type JWTAuthenticator struct {
	jwtSecret []byte
}

func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{jwtSecret: []byte(secret)}
}

func (a *JWTAuthenticator) Verify(tokenString string) (Principal, error) {
	if tokenString == "" {
		return Principal{}, uniforme_errors.ErrUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, uniforme_errors.ErrUnauthorized
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return Principal{}, uniforme_errors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid || claims.UserID <= 0 {
		return Principal{}, uniforme_errors.ErrUnauthorized
	}

	return Principal{
		ID:      claims.UserID,
		Name:    claims.Name,
		Role:    claims.Role,
		Sector:  claims.Sector,
		IsAdmin: claims.IsAdmin,
	}, nil
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
