package permissions

import (
	"fmt"
	"sort"
	"strings"
)

// Roles recognized in admin tokens.
const (
	RoleServiceRole = "service_role"
	RoleModerator   = "moderator"
)

// Definition describes an admin permission.
type Definition struct {
	Key    string `json:"key"`
	Method string `json:"method"`
	Path   string `json:"path"`
	Label  string `json:"label"`
	Module string `json:"module"`
}

// Key builds a permission key from method and path.
func Key(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// NormalizePermissions trims, de-duplicates, and sorts permissions.
func NormalizePermissions(perms []string) []string {
	if len(perms) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, perm := range perms {
		trimmed := strings.TrimSpace(perm)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	sort.Strings(normalized)
	return normalized
}

// ValidatePermissions validates that all permissions exist in the definition set.
func ValidatePermissions(perms []string) error {
	for _, perm := range perms {
		trimmed := strings.TrimSpace(perm)
		if trimmed == "" {
			continue
		}
		if _, ok := definitionMap[trimmed]; !ok {
			return fmt.Errorf("invalid permission: %s", trimmed)
		}
	}
	return nil
}

// ForRole returns the permissions granted to a token role.
func ForRole(role string) []string {
	switch strings.TrimSpace(role) {
	case RoleServiceRole:
		out := make([]string, 0, len(definitions))
		for _, def := range definitions {
			out = append(out, def.Key)
		}
		return NormalizePermissions(out)
	case RoleModerator:
		return NormalizePermissions(moderatorPermissions)
	default:
		return []string{}
	}
}

// HasPermission checks whether the key exists in the permission list.
func HasPermission(perms []string, key string) bool {
	if key == "" {
		return false
	}
	for _, perm := range perms {
		if perm == key {
			return true
		}
	}
	return false
}

// Definitions returns a copy of all permission definitions.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// newDefinition builds a Definition with a normalized key.
func newDefinition(method, path, label, module string) Definition {
	upperMethod := strings.ToUpper(method)
	return Definition{
		Key:    Key(upperMethod, path),
		Method: upperMethod,
		Path:   path,
		Label:  label,
		Module: module,
	}
}

// definitions is the ordered list of permission definitions.
var definitions = []Definition{
	newDefinition("GET", "/v0/admin/quotas", "List Quotas", "Quota"),
	newDefinition("POST", "/v0/admin/quotas", "Create Quota", "Quota"),
	newDefinition("GET", "/v0/admin/quotas/:id", "Get Quota", "Quota"),
	newDefinition("POST", "/v0/admin/quotas/:id/block", "Block User", "Quota"),
	newDefinition("POST", "/v0/admin/quotas/:id/unblock", "Unblock User", "Quota"),
	newDefinition("POST", "/v0/admin/quotas/:id/reset", "Reset Daily Quota", "Quota"),

	newDefinition("GET", "/v0/admin/settings", "List Settings", "Settings"),
	newDefinition("GET", "/v0/admin/settings/:key", "Get Setting", "Settings"),
	newDefinition("PUT", "/v0/admin/settings/:key", "Override Setting", "Settings"),
	newDefinition("DELETE", "/v0/admin/settings/:key", "Clear Setting Override", "Settings"),

	newDefinition("GET", "/v0/admin/permissions", "List Permissions", "Permissions"),
}

var moderatorPermissions = []string{
	Key("GET", "/v0/admin/quotas"),
	Key("GET", "/v0/admin/quotas/:id"),
	Key("POST", "/v0/admin/quotas/:id/block"),
	Key("POST", "/v0/admin/quotas/:id/unblock"),
	Key("GET", "/v0/admin/permissions"),
}

var definitionMap = func() map[string]Definition {
	out := make(map[string]Definition, len(definitions))
	for _, def := range definitions {
		out[def.Key] = def
	}
	return out
}()
