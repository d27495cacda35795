package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// Roles carried on the Firebase "role" custom claim. Marketplace roles (customer, seller)
// live on the account record; only platform staff are marked through the token.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ErrUserLoaderUnavailable is returned by Identity.User when no loader was configured.
var ErrUserLoaderUnavailable = errors.New("auth: user loader not configured")

// Identity is the verified Firebase principal of a request.
type Identity struct {
	UID         string
	Email       string
	PhoneNumber string
	Roles       []string

	token *firebaseauth.Token

	loader   UserLoader
	loadOnce sync.Once
	record   *firebaseauth.UserRecord
	loadErr  error
}

// UserLoader resolves the Firebase user record of uid.
type UserLoader func(ctx context.Context, uid string) (*firebaseauth.UserRecord, error)

func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// HasRole reports whether the identity carries role, ignoring case.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if normaliseRole(r) == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the identity is platform staff.
func (i *Identity) IsAdmin() bool { return i.HasRole(RoleAdmin) }

// User loads the Firebase user record once per identity.
func (i *Identity) User(ctx context.Context) (*firebaseauth.UserRecord, error) {
	if i == nil || i.loader == nil {
		return nil, ErrUserLoaderUnavailable
	}
	i.loadOnce.Do(func() {
		i.record, i.loadErr = i.loader(ctx, i.UID)
	})
	return i.record, i.loadErr
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
