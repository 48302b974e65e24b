// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"sort"
	"sync"

	"github.com/agentdeck/agentdeck/agentapi"
)

// PermissionStore tracks permission prompts that are still waiting for
// an answer. The reconciler adds prompts on permission.updated and
// removes them on permission.replied, so a reply from any console,
// this one or another, clears the prompt everywhere.
type PermissionStore struct {
	onChange func(permission agentapi.Permission, pending bool)

	mu      sync.RWMutex
	pending map[string]agentapi.Permission
}

// NewPermissionStore creates a PermissionStore. onChange, when
// non-nil, fires outside the lock with pending=true when a prompt
// appears or changes and pending=false when it is answered or
// dismissed.
func NewPermissionStore(onChange func(permission agentapi.Permission, pending bool)) *PermissionStore {
	return &PermissionStore{
		onChange: onChange,
		pending:  make(map[string]agentapi.Permission),
	}
}

// Pending returns the open prompts for one session, oldest first.
func (p *PermissionStore) Pending(sessionID string) []agentapi.Permission {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []agentapi.Permission
	for _, permission := range p.pending {
		if permission.SessionID == sessionID {
			out = append(out, permission)
		}
	}
	sortPermissions(out)
	return out
}

// All returns every open prompt, oldest first.
func (p *PermissionStore) All() []agentapi.Permission {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]agentapi.Permission, 0, len(p.pending))
	for _, permission := range p.pending {
		out = append(out, permission)
	}
	sortPermissions(out)
	return out
}

// Dismiss drops a prompt locally without answering it. The server
// still considers it pending; it reappears on the next
// permission.updated for the same id.
func (p *PermissionStore) Dismiss(permissionID string) {
	p.remove(permissionID)
}

func (p *PermissionStore) put(permission agentapi.Permission) {
	p.mu.Lock()
	p.pending[permission.ID] = permission
	p.mu.Unlock()
	if p.onChange != nil {
		p.onChange(permission, true)
	}
}

func (p *PermissionStore) remove(permissionID string) {
	p.mu.Lock()
	permission, ok := p.pending[permissionID]
	if ok {
		delete(p.pending, permissionID)
	}
	p.mu.Unlock()
	if ok && p.onChange != nil {
		p.onChange(permission, false)
	}
}

// removeSession drops every prompt belonging to a deleted session.
func (p *PermissionStore) removeSession(sessionID string) {
	p.mu.Lock()
	var removed []agentapi.Permission
	for id, permission := range p.pending {
		if permission.SessionID == sessionID {
			removed = append(removed, permission)
			delete(p.pending, id)
		}
	}
	p.mu.Unlock()
	if p.onChange != nil {
		for _, permission := range removed {
			p.onChange(permission, false)
		}
	}
}

// Prompt ids are time-ordered, so id order is arrival order.
func sortPermissions(list []agentapi.Permission) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
}
