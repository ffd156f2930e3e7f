package rbac

import "strings"

// Role is a closed enumeration of dashboard roles.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleViewer  Role = "viewer"

	// RoleUnknown is the fail-closed sentinel for unrecognized role strings.
	// It maps to empty capability and page sets.
	RoleUnknown Role = ""
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleManager, RoleViewer}

// ParseRole maps a stored role string to a Role. Unrecognized strings
// yield RoleUnknown.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleManager:
		return RoleManager
	case RoleViewer:
		return RoleViewer
	}
	return RoleUnknown
}

// Valid returns true for a recognized role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleViewer:
		return true
	}
	return false
}

// Capability is a named permission token gating one action.
type Capability string

const (
	CapViewDevices     Capability = "view_devices"
	CapEditDevices     Capability = "edit_devices"
	CapDeleteDevices   Capability = "delete_devices"
	CapScanDevices     Capability = "scan_devices"
	CapViewNetwork     Capability = "view_network"
	CapManageNetwork   Capability = "manage_network"
	CapConfigureRouter Capability = "configure_router"
	CapBlockWebsites   Capability = "block_websites"
	CapViewAlerts      Capability = "view_alerts"
	CapViewReports     Capability = "view_reports"
	CapManageUsers     Capability = "manage_users"
	CapManageSettings  Capability = "manage_settings"
)

var allCapabilities = map[Capability]bool{
	CapViewDevices:     true,
	CapEditDevices:     true,
	CapDeleteDevices:   true,
	CapScanDevices:     true,
	CapViewNetwork:     true,
	CapManageNetwork:   true,
	CapConfigureRouter: true,
	CapBlockWebsites:   true,
	CapViewAlerts:      true,
	CapViewReports:     true,
	CapManageUsers:     true,
	CapManageSettings:  true,
}

// Principal is the authenticated identity driving authorization decisions.
type Principal struct {
	Identifier string `json:"username"`
	Role       Role   `json:"role"`
}

// PrincipalSource yields the currently active principal, or nil when
// nobody is signed in.
type PrincipalSource interface {
	Principal() *Principal
}
