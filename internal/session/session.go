package session

import (
	"context"
	"errors"
	"fmt"

	"staycal/internal/model"
	"staycal/internal/store"
)

var (
	// ErrNoIdentity means the request carried no authenticated user.
	ErrNoIdentity = errors.New("authentication required")
	// ErrNotOwner means the user is authenticated but not the owner.
	ErrNotOwner = errors.New("owner access required")
)

// Identity is the authenticated user established by the auth gateway.
type Identity struct {
	UserID string
	Email  string
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored in ctx, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, false
	}
	return id, true
}

// ProfileLookup reads a profile by user id.
type ProfileLookup interface {
	GetProfile(ctx context.Context, id string) (model.Profile, error)
}

// RequireOwner reads the caller's profile and fails unless it carries the
// owner flag. The profile is read on every call, so revoking the flag
// takes effect on the next request. A missing profile is ErrNotOwner;
// any other lookup failure is returned as is.
func RequireOwner(ctx context.Context, profiles ProfileLookup) (model.Profile, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return model.Profile{}, ErrNoIdentity
	}
	p, err := profiles.GetProfile(ctx, id.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Profile{}, ErrNotOwner
	}
	if err != nil {
		return model.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	if !p.IsOwner {
		return model.Profile{}, ErrNotOwner
	}
	return p, nil
}
