package domain

import "slices"

// Identity is an admitted user and the roles its credential carries.
type Identity struct {
	UserID UserID
	Roles  []string
}

// HasAnyRole reports whether the identity holds at least one of roles.
func (i Identity) HasAnyRole(roles ...string) bool {
	return slices.ContainsFunc(i.Roles, func(r string) bool {
		return slices.Contains(roles, r)
	})
}
