package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donabox/api/internal/repositories/memory"
)

func TestAllowlistGate(t *testing.T) {
	directory := memory.NewAdminDirectory("Manager@DonaBox.mx")
	gate := NewAllowlistGate(AllowlistGateDeps{
		Static:               []string{" OWNER@donabox.mx ", ""},
		Directory:            directory,
		RequireVerifiedEmail: true,
	})

	cases := []struct {
		name   string
		caller Caller
		want   bool
	}{
		{"anonymous", Caller{}, false},
		{"static list, case insensitive", Caller{UID: "u1", Email: "owner@DONABOX.mx", EmailVerified: true}, true},
		{"directory", Caller{UID: "u2", Email: "manager@donabox.mx", EmailVerified: true}, true},
		{"unverified email", Caller{UID: "u3", Email: "owner@donabox.mx"}, false},
		{"not listed", Caller{UID: "u4", Email: "ana@example.com", EmailVerified: true}, false},
		{"no email", Caller{UID: "u5", EmailVerified: true}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := gate.IsPrivileged(context.Background(), tc.caller)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAdminServiceMe(t *testing.T) {
	env := newTestEnv(t)
	svc, err := NewAdminService(env.gate)
	require.NoError(t, err)

	profile, err := svc.Me(context.Background(), staff)
	require.NoError(t, err)
	assert.Equal(t, AdminProfile{Email: adminEmail, Privileged: true}, profile)

	profile, err = svc.Me(context.Background(), customer)
	require.NoError(t, err)
	assert.False(t, profile.Privileged)
	assert.Equal(t, "ana@example.com", profile.Email)

	_, err = svc.Me(context.Background(), anon)
	require.ErrorIs(t, err, ErrUnauthenticated)
}
