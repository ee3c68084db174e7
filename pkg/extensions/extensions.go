// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

// ServiceOptions groups all extension points for service configuration.
//
// Pass this to the orchestrator at startup. All fields are optional; nil
// values are replaced with the open-source defaults by DefaultOptions().
type ServiceOptions struct {
	// AuthProvider validates authentication tokens.
	// Default: NopAuthProvider (always returns the local user)
	AuthProvider AuthProvider

	// MembershipProvider decides data-space access.
	// Default: NopMembershipProvider (every user, every space)
	MembershipProvider MembershipProvider

	// AuditLogger records security-relevant events.
	// Default: SlogAuditLogger (structured log stream as audit trail)
	AuditLogger AuditLogger
}

// DefaultOptions returns ServiceOptions with the open-source defaults.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider:       &NopAuthProvider{},
		MembershipProvider: &NopMembershipProvider{},
		AuditLogger:        &SlogAuditLogger{},
	}
}

// WithAuth returns a copy of opts with the given AuthProvider.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithMembership returns a copy of opts with the given MembershipProvider.
func (opts ServiceOptions) WithMembership(provider MembershipProvider) ServiceOptions {
	opts.MembershipProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}
