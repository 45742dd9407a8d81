package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/donabox/api/internal/platform/textutil"
	"github.com/donabox/api/internal/repositories"
)

// AllowlistGateDeps configures the staff allowlist.
type AllowlistGateDeps struct {
	// Static emails come from deployment configuration.
	Static []string
	// Directory is the editable list kept in storage. Optional.
	Directory repositories.AdminDirectory
	// RequireVerifiedEmail refuses privilege to unverified sign-ins.
	RequireVerifiedEmail bool
}

type allowlistGate struct {
	static    []string
	directory repositories.AdminDirectory
	verified  bool
}

var _ AuthorizationGate = (*allowlistGate)(nil)

// NewAllowlistGate builds a gate that grants privilege to callers whose email is on the
// static list or in the admin directory. Comparison is case-insensitive.
func NewAllowlistGate(deps AllowlistGateDeps) AuthorizationGate {
	static := make([]string, 0, len(deps.Static))
	for _, email := range deps.Static {
		if normalized := textutil.NormalizeEmail(email); normalized != "" {
			static = append(static, normalized)
		}
	}
	return &allowlistGate{
		static:    static,
		directory: deps.Directory,
		verified:  deps.RequireVerifiedEmail,
	}
}

func (g *allowlistGate) IsPrivileged(ctx context.Context, caller Caller) (bool, error) {
	if !caller.Authenticated() {
		return false, nil
	}
	email := textutil.NormalizeEmail(caller.Email)
	if email == "" {
		return false, nil
	}
	if g.verified && !caller.EmailVerified {
		return false, nil
	}
	if slices.ContainsFunc(g.static, func(candidate string) bool { return textutil.EqualFold(candidate, email) }) {
		return true, nil
	}
	if g.directory == nil {
		return false, nil
	}
	emails, err := g.directory.Emails(ctx)
	if err != nil {
		return false, fmt.Errorf("authorization: load admin directory: %w", err)
	}
	return slices.ContainsFunc(emails, func(candidate string) bool { return textutil.EqualFold(candidate, email) }), nil
}

// requirePrivileged rejects callers before any repository access so that unauthorized
// callers learn nothing about stored data.
func requirePrivileged(ctx context.Context, gate AuthorizationGate, caller Caller) error {
	if !caller.Authenticated() {
		return ErrUnauthenticated
	}
	if gate == nil {
		return ErrUnauthorized
	}
	ok, err := gate.IsPrivileged(ctx, caller)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

type adminService struct {
	gate AuthorizationGate
}

// NewAdminService exposes the gate decision for the signed-in caller.
func NewAdminService(gate AuthorizationGate) (AdminService, error) {
	if gate == nil {
		return nil, errors.New("admin service: authorization gate is required")
	}
	return &adminService{gate: gate}, nil
}

func (s *adminService) Me(ctx context.Context, caller Caller) (AdminProfile, error) {
	if !caller.Authenticated() {
		return AdminProfile{}, ErrUnauthenticated
	}
	privileged, err := s.gate.IsPrivileged(ctx, caller)
	if err != nil {
		return AdminProfile{}, err
	}
	return AdminProfile{
		Email:      textutil.NormalizeEmail(caller.Email),
		Privileged: privileged,
	}, nil
}
