package domain

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxPermissionKeyLen = 100
	maxRoleNameLen      = 100
)

var permissionKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z0-9_]+)*$`)

// PermissionKey is the stable identifier of a catalog permission, e.g. "leads_view".
// Guards reference permissions only by key.
type PermissionKey string

// ParsePermissionKey validates and returns a PermissionKey
func ParsePermissionKey(raw string) (PermissionKey, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return "", fmt.Errorf("%w: permission key is empty", ErrInvalidKey)
	}
	if len(key) > maxPermissionKeyLen {
		return "", fmt.Errorf("%w: permission key %q exceeds %d characters", ErrInvalidKey, key, maxPermissionKeyLen)
	}
	if !permissionKeyPattern.MatchString(key) {
		return "", fmt.Errorf("%w: malformed permission key %q", ErrInvalidKey, key)
	}
	return PermissionKey(key), nil
}

// MustPermissionKey is like ParsePermissionKey but panics on invalid input.
// Use it for keys declared at package level.
func MustPermissionKey(raw string) PermissionKey {
	key, err := ParsePermissionKey(raw)
	if err != nil {
		panic(err)
	}
	return key
}

// ParsePermissionKeys parses every entry, failing on the first invalid one
func ParsePermissionKeys(raw []string) ([]PermissionKey, error) {
	keys := make([]PermissionKey, 0, len(raw))
	for _, r := range raw {
		key, err := ParsePermissionKey(r)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (k PermissionKey) String() string {
	return string(k)
}

// RoleName is the unique display name of a role, e.g. "Manager"
type RoleName string

// ParseRoleName trims and validates a role name
func ParseRoleName(raw string) (RoleName, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("%w: role name is empty", ErrInvalidKey)
	}
	if len(name) > maxRoleNameLen {
		return "", fmt.Errorf("%w: role name exceeds %d characters", ErrInvalidKey, maxRoleNameLen)
	}
	return RoleName(name), nil
}

// MustRoleName panics on an invalid role name
func MustRoleName(raw string) RoleName {
	name, err := ParseRoleName(raw)
	if err != nil {
		panic(err)
	}
	return name
}

func (n RoleName) String() string {
	return string(n)
}
