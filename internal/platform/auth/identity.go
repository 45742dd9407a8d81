package auth

import (
	"context"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/donabox/api/internal/platform/textutil"
)

// Identity is the signed-in caller. It says nothing about privilege; the staff
// allowlist is checked against the email by the services.
type Identity struct {
	UID           string
	Email         string
	EmailVerified bool
	Name          string

	token *firebaseauth.Token
}

// identityFromToken reads the caller from verified claims. emailClaim is tried first
// and the standard "email" claim after it.
func identityFromToken(token *firebaseauth.Token, emailClaim string) *Identity {
	id := &Identity{
		UID:           strings.TrimSpace(token.UID),
		Email:         stringClaim(token.Claims, emailClaim),
		EmailVerified: boolClaim(token.Claims, "email_verified"),
		Name:          stringClaim(token.Claims, "name"),
		token:         token,
	}
	if id.Email == "" {
		id.Email = stringClaim(token.Claims, defaultEmailClaim)
	}
	return id
}

func stringClaim(claims map[string]any, key string) string {
	v, _ := claims[key].(string)
	return strings.TrimSpace(v)
}

func boolClaim(claims map[string]any, key string) bool {
	v, _ := claims[key].(bool)
	return v
}

// Token is the decoded ID token the identity came from.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// NormalizedEmail is the email in the form the staff allowlist stores.
func (i *Identity) NormalizedEmail() string {
	if i == nil {
		return ""
	}
	return textutil.NormalizeEmail(i.Email)
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext reports false for anonymous requests.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok && identity != nil
}
