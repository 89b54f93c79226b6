package auth

import (
	"crypto/subtle"
	"errors"
)

var ErrBadCredentials = errors.New("auth: invalid password")

// Passwords maps the shared dashboard passwords to roles. The owner
// password is checked first so equal passwords resolve to owner.
type Passwords struct {
	Owner string
	Staff string
}

// RoleFor returns the role unlocked by password.
func (p Passwords) RoleFor(password string, ownerRole, staffRole string) (string, error) {
	if password == "" {
		return "", ErrBadCredentials
	}
	if p.Owner != "" && subtle.ConstantTimeCompare([]byte(password), []byte(p.Owner)) == 1 {
		return ownerRole, nil
	}
	if p.Staff != "" && subtle.ConstantTimeCompare([]byte(password), []byte(p.Staff)) == 1 {
		return staffRole, nil
	}
	return "", ErrBadCredentials
}
