// Package session owns the single source of truth for "who is logged in"
// and where that fact persists. A Manager holds at most one active
// principal; persistence is split between a durable store (survives
// restarts, opted in via "remember me") and a volatile one.
package session

import (
	"encoding/json"

	"github.com/org/assetwatch/internal/rbac"
)

// StorageKey is the slot under which the serialized principal lives in
// both stores.
const StorageKey = "user"

// LoginRoute is handed to the navigation hook on logout. The Manager never
// performs the redirect itself.
const LoginRoute = "/login"

type storedPrincipal struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Manager tracks the active principal across the durable and volatile
// stores. It satisfies rbac.PrincipalSource.
type Manager struct {
	durable  Store
	volatile Store
	active   *rbac.Principal

	// onLogout, when set, is invoked with LoginRoute after a logout.
	onLogout func(route string)
}

// NewManager creates a Manager over the given stores with no active
// principal. Call Restore to recover a persisted login.
func NewManager(durable, volatile Store) *Manager {
	return &Manager{durable: durable, volatile: volatile}
}

// OnLogout registers the navigation hook invoked after Logout.
func (m *Manager) OnLogout(fn func(route string)) {
	m.onLogout = fn
}

// Restore recovers a persisted principal, durable store first, then
// volatile. Malformed stored data is treated as absent. Restore never acts
// when a principal is already active.
func (m *Manager) Restore() {
	if m.active != nil {
		return
	}
	for _, store := range []Store{m.durable, m.volatile} {
		if store == nil {
			continue
		}
		data, ok := store.Get(StorageKey)
		if !ok {
			continue
		}
		var sp storedPrincipal
		if err := json.Unmarshal(data, &sp); err != nil || sp.Username == "" {
			continue
		}
		m.active = &rbac.Principal{
			Identifier: sp.Username,
			Role:       rbac.ParseRole(sp.Role),
		}
		return
	}
}

// Login sets the active principal and persists it: durable store when
// persist is true, volatile otherwise.
func (m *Manager) Login(username, role string, persist bool) error {
	p := &rbac.Principal{Identifier: username, Role: rbac.ParseRole(role)}
	data, err := json.Marshal(storedPrincipal{Username: username, Role: role})
	if err != nil {
		return err
	}
	target := m.volatile
	if persist {
		target = m.durable
	}
	if target != nil {
		if err := target.Set(StorageKey, data); err != nil {
			return err
		}
	}
	m.active = p
	return nil
}

// Logout clears the active principal, removes the stored principal from
// both stores and fires the navigation hook. Idempotent: a second call
// leaves the same end state.
func (m *Manager) Logout() {
	m.active = nil
	if m.durable != nil {
		m.durable.Delete(StorageKey) //nolint:errcheck
	}
	if m.volatile != nil {
		m.volatile.Delete(StorageKey) //nolint:errcheck
	}
	if m.onLogout != nil {
		m.onLogout(LoginRoute)
	}
}

// Principal returns the active principal, or nil when logged out.
func (m *Manager) Principal() *rbac.Principal {
	return m.active
}

// Authenticated reports whether a principal is active.
func (m *Manager) Authenticated() bool {
	return m.active != nil
}
