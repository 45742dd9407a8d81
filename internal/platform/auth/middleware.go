// Package auth verifies Firebase ID tokens and puts the caller's Identity on the
// request context.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/donabox/api/internal/platform/httpx"
)

const (
	defaultEmailClaim    = "email"
	defaultVerifyTimeout = 5 * time.Second
)

var (
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")

	errVerifierUnavailable = errors.New("auth: verifier unavailable")
	errMalformedHeader     = errors.New("auth: malformed authorization header")
)

type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

type Authenticator struct {
	verifier   TokenVerifier
	emailClaim string
	timeout    time.Duration
}

type Option func(*Authenticator)

// WithEmailClaim reads the email from a custom claim first.
func WithEmailClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.emailClaim = claim
		}
	}
}

// WithVerificationTimeout bounds each VerifyIDToken call. The default is 5s.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:   verifier,
		emailClaim: defaultEmailClaim,
		timeout:    defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireFirebaseAuth answers 401 unless the request carries a valid bearer token.
func (a *Authenticator) RequireFirebaseAuth() func(http.Handler) http.Handler {
	return a.middleware(true)
}

// OptionalFirebaseAuth lets anonymous requests through. A token that is present must
// still be valid.
func (a *Authenticator) OptionalFirebaseAuth() func(http.Handler) http.Handler {
	return a.middleware(false)
}

func (a *Authenticator) middleware(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" && !required {
				next.ServeHTTP(w, r)
				return
			}
			identity, err := a.authenticate(ctx, header)
			if err != nil {
				httpx.WriteError(ctx, w, authError(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func (a *Authenticator) authenticate(ctx context.Context, header string) (*Identity, error) {
	raw, ok := extractBearerToken(header)
	if !ok {
		return nil, errMalformedHeader
	}
	if a == nil || a.verifier == nil {
		return nil, errVerifierUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	token, err := a.verifier.VerifyIDToken(ctx, raw)
	if err != nil {
		return nil, err
	}
	if token == nil || strings.TrimSpace(token.UID) == "" {
		return nil, ErrTokenInvalid
	}
	return identityFromToken(token, a.emailClaim), nil
}

func authError(err error) httpx.Error {
	unauthorized := func(code, message string) httpx.Error {
		return httpx.NewError(code, message, http.StatusUnauthorized)
	}
	switch {
	case errors.Is(err, errMalformedHeader):
		return unauthorized("unauthenticated", "authorization header missing or invalid")
	case errors.Is(err, errVerifierUnavailable):
		return httpx.NewError("auth_unavailable", "authorization service unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
		return unauthorized("token_expired", "firebase id token expired")
	case errors.Is(err, ErrTokenInvalid), firebaseauth.IsIDTokenInvalid(err):
		return unauthorized("invalid_token", "firebase id token invalid")
	default:
		return unauthorized("invalid_token", "firebase id token verification failed")
	}
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
