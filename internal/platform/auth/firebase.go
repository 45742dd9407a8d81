package auth

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/donabox/api/internal/platform/config"
)

// FirebaseVerifier checks ID tokens with the Firebase Admin SDK. Timeouts are applied
// by the Authenticator.
type FirebaseVerifier struct {
	client       *firebaseauth.Client
	checkRevoked bool
}

var _ TokenVerifier = (*FirebaseVerifier)(nil)

type FirebaseOption func(*FirebaseVerifier)

// WithRevocationCheck also rejects tokens of revoked sessions. It costs one Auth
// backend call per request, so it is only turned on in production.
func WithRevocationCheck() FirebaseOption {
	return func(v *FirebaseVerifier) { v.checkRevoked = true }
}

func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig, opts ...FirebaseOption) (*FirebaseVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("auth: firebase project id is required")
	}
	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase app for %s: %w", cfg.ProjectID, err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase auth client: %w", err)
	}

	v := &FirebaseVerifier{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	switch {
	case v == nil || v.client == nil:
		return nil, errVerifierUnavailable
	case v.checkRevoked:
		return v.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	default:
		return v.client.VerifyIDToken(ctx, idToken)
	}
}
