// Package auth resolves the calling user from bearer tokens issued by the
// external identity provider and carries the resolved id on the request
// context.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned when a token is missing, malformed,
// expired, or signed with the wrong key.
var ErrUnauthenticated = errors.New("unauthenticated")

// Claims are the access-token claims. The caller id is the subject.
type Claims struct {
	jwt.RegisteredClaims
}

// Resolver validates HS256 access tokens.
type Resolver struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewResolver returns a Resolver for tokens signed with secret. When issuer
// is non-empty the iss claim must match it.
func NewResolver(secret, issuer string) *Resolver {
	return &Resolver{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Resolve returns the caller id carried by token.
func (r *Resolver) Resolve(token string) (string, error) {
	if token == "" || len(r.secret) == 0 {
		return "", ErrUnauthenticated
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(r.now),
	}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthenticated
		}
		return r.secret, nil
	}, opts...)
	if err != nil {
		return "", ErrUnauthenticated
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrUnauthenticated
	}
	return claims.Subject, nil
}

// Issue signs a token for userID valid for ttl. Production tokens come from
// the identity provider; this is used by tests and local tooling.
func (r *Resolver) Issue(userID string, ttl time.Duration) (string, error) {
	now := r.now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    r.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

// BearerToken extracts the token from an "Authorization: Bearer <t>" value.
func BearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

type ctxKey struct{}

// WithUserID returns a copy of ctx carrying the caller id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserIDFrom returns the caller id stored on ctx, or "" when the request is
// unauthenticated.
func UserIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(ctxKey{}).(string)
	return s
}
