// Package identity wraps account creation and deletion behind a small
// admin interface so provisioning can run against a fake in tests.
package identity

import (
	"context"
	"errors"
)

// ErrDuplicateEmail signals that an identity with the email already exists.
var ErrDuplicateEmail = errors.New("email already registered")

// NewIdentity carries the attributes needed to create an account.
type NewIdentity struct {
	Email    string
	Password string
	// Metadata echoes profile attributes onto the identity record the way
	// the upstream admin API stores user_metadata.
	Metadata map[string]string
}

// Admin creates and deletes identity records. DeleteIdentity is the
// compensating action of CreateIdentity and must tolerate repetition.
type Admin interface {
	CreateIdentity(ctx context.Context, ident NewIdentity) (string, error)
	DeleteIdentity(ctx context.Context, id string) error
}
