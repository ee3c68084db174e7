// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the pluggable provider interfaces for
// authentication, data-space membership, and auditing.
//
// The open source build ships permissive no-op providers so a single-user
// local deployment needs no identity infrastructure. Enterprise deployments
// swap in real implementations (Okta/Auth0 token validation, directory-backed
// membership) without touching the orchestrator.
package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when authentication or authorization fails.
// Enterprise implementations should wrap this error with additional context.
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo contains identity information returned after successful
// authentication.
type AuthInfo struct {
	// UserID is the unique identifier for the authenticated user.
	// This is the only required field and must never be empty.
	UserID string

	// Email is the user's email address. May be empty.
	Email string

	// Roles contains the user's role memberships for authorization
	// decisions. Common roles: "admin", "analyst", "viewer".
	Roles []string
}

// HasRole checks if the user has a specific role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates authentication tokens and returns user identity.
//
// Implementations must be safe for concurrent use.
type AuthProvider interface {
	// Validate checks if the token is valid and returns the user's
	// identity. Returns ErrUnauthorized (or wrapped) if invalid.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// MembershipProvider answers whether a user may touch a data space.
//
// # Description
//
// Every document, session, and retrieval is scoped to a data space, so
// membership is the unit of access control. Callers treat this provider as
// fail-closed: an error from Member denies access, it never falls through
// to allow.
//
// Implementations must be safe for concurrent use.
type MembershipProvider interface {
	// Member reports whether the user belongs to the data space.
	Member(ctx context.Context, userID, dataSpace string) (bool, error)
}

// NopAuthProvider is the default authentication provider for open source.
// It always returns a valid local user with admin privileges, so the CLI
// works without identity infrastructure. Any token, including none, passes.
type NopAuthProvider struct{}

// Validate always returns the local user.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-user",
		Roles:  []string{"admin"},
	}, nil
}

// NopMembershipProvider grants every user every data space. Appropriate for
// single-user local deployments only.
type NopMembershipProvider struct{}

// Member always returns true.
func (p *NopMembershipProvider) Member(_ context.Context, _, _ string) (bool, error) {
	return true, nil
}

// Compile-time interface compliance checks.
var (
	_ AuthProvider       = (*NopAuthProvider)(nil)
	_ MembershipProvider = (*NopMembershipProvider)(nil)
)
