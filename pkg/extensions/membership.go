// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"sync"
)

// StaticMembershipProvider grants access from a fixed user → data-space
// table. Users absent from the table have no memberships: access control is
// deny-by-default.
//
// # Thread Safety
//
// Safe for concurrent use.
type StaticMembershipProvider struct {
	mu      sync.RWMutex
	members map[string]map[string]bool
}

// NewStaticMembershipProvider builds a provider from a user → data spaces
// mapping.
func NewStaticMembershipProvider(grants map[string][]string) *StaticMembershipProvider {
	members := make(map[string]map[string]bool, len(grants))
	for user, spaces := range grants {
		set := make(map[string]bool, len(spaces))
		for _, s := range spaces {
			set[s] = true
		}
		members[user] = set
	}
	return &StaticMembershipProvider{members: members}
}

// Member implements the MembershipProvider interface.
func (p *StaticMembershipProvider) Member(_ context.Context, userID, dataSpace string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.members[userID][dataSpace], nil
}

// Grant adds a membership at runtime.
func (p *StaticMembershipProvider) Grant(userID, dataSpace string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.members[userID] == nil {
		p.members[userID] = make(map[string]bool)
	}
	p.members[userID][dataSpace] = true
}

var _ MembershipProvider = (*StaticMembershipProvider)(nil)
