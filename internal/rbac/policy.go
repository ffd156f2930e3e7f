package rbac

import "fmt"

// PermissionSet maps each role to its capability set. The per-role sets are
// independent: nothing assumes admin ⊇ manager ⊇ viewer.
type PermissionSet map[Role][]Capability

// PageAllowList maps each role to the route paths it may navigate to.
type PageAllowList map[Role][]string

// DefaultPermissions is the built-in role → capability table.
func DefaultPermissions() PermissionSet {
	return PermissionSet{
		RoleAdmin: {
			CapViewDevices, CapEditDevices, CapDeleteDevices, CapScanDevices,
			CapViewNetwork, CapManageNetwork, CapConfigureRouter, CapBlockWebsites,
			CapViewAlerts, CapViewReports, CapManageUsers, CapManageSettings,
		},
		RoleManager: {
			CapViewDevices, CapEditDevices, CapDeleteDevices, CapScanDevices,
			CapViewNetwork, CapManageNetwork, CapBlockWebsites,
			CapViewAlerts, CapViewReports,
		},
		RoleViewer: {
			CapViewDevices, CapViewNetwork, CapViewAlerts, CapViewReports,
		},
	}
}

// DefaultPages is the built-in role → page table.
func DefaultPages() PageAllowList {
	return PageAllowList{
		RoleAdmin: {
			"/", "/devices", "/map", "/network", "/blocking",
			"/alerts", "/reports", "/settings", "/users",
		},
		RoleManager: {
			"/", "/devices", "/map", "/network", "/blocking",
			"/alerts", "/reports",
		},
		RoleViewer: {
			"/", "/devices", "/map", "/network", "/alerts", "/reports",
		},
	}
}

// AccessPolicy answers authorization queries against the active principal.
// The tables are compiled once at construction and never mutated, so two
// queries with the same inputs always agree.
type AccessPolicy struct {
	source PrincipalSource
	perms  map[Role]map[Capability]bool
	pages  map[Role]map[string]bool
}

// NewAccessPolicy builds a policy bound to a principal source using the
// built-in tables.
func NewAccessPolicy(source PrincipalSource) *AccessPolicy {
	p, err := NewAccessPolicyWithTables(source, DefaultPermissions(), DefaultPages())
	if err != nil {
		// The built-in tables only contain known roles and capabilities.
		panic(err)
	}
	return p
}

// NewAccessPolicyWithTables builds a policy from caller-supplied tables.
// Unknown roles or capability tokens are construction-time errors, so a
// typo cannot silently become an always-false check.
func NewAccessPolicyWithTables(source PrincipalSource, perms PermissionSet, pages PageAllowList) (*AccessPolicy, error) {
	compiled := make(map[Role]map[Capability]bool, len(perms))
	for role, caps := range perms {
		if !role.Valid() {
			return nil, fmt.Errorf("permission set: unknown role %q", role)
		}
		set := make(map[Capability]bool, len(caps))
		for _, c := range caps {
			if !allCapabilities[c] {
				return nil, fmt.Errorf("permission set: unknown capability %q for role %q", c, role)
			}
			set[c] = true
		}
		compiled[role] = set
	}

	pageSet := make(map[Role]map[string]bool, len(pages))
	for role, paths := range pages {
		if !role.Valid() {
			return nil, fmt.Errorf("page allow-list: unknown role %q", role)
		}
		set := make(map[string]bool, len(paths))
		for _, p := range paths {
			set[p] = true
		}
		pageSet[role] = set
	}

	return &AccessPolicy{source: source, perms: compiled, pages: pageSet}, nil
}

// HasPermission reports whether the active principal holds the capability.
// False with no active principal, false for unrecognized roles.
func (a *AccessPolicy) HasPermission(c Capability) bool {
	p := a.principal()
	if p == nil {
		return false
	}
	return a.Allows(p.Role, c)
}

// CanAccessPage reports whether the active principal may navigate to path.
func (a *AccessPolicy) CanAccessPage(path string) bool {
	p := a.principal()
	if p == nil {
		return false
	}
	return a.PageAllowed(p.Role, path)
}

// Allows is the pure table query: does role hold capability?
func (a *AccessPolicy) Allows(role Role, c Capability) bool {
	return a.perms[role][c]
}

// PageAllowed is the pure table query: may role navigate to path?
func (a *AccessPolicy) PageAllowed(role Role, path string) bool {
	return a.pages[role][path]
}

func (a *AccessPolicy) principal() *Principal {
	if a.source == nil {
		return nil
	}
	return a.source.Principal()
}
