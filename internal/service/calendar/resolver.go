package calendar

import (
	"context"
	"log"

	"golang.org/x/oauth2"
)

// TokenSourcer looks up stored OAuth credentials. It returns a nil source
// when the email has not connected a Google account.
type TokenSourcer interface {
	TokenSource(ctx context.Context, email string) (oauth2.TokenSource, error)
}

// Resolver picks the Google backend for connected accounts and the simulated
// store for everyone else.
type Resolver struct {
	store  *Store
	tokens TokenSourcer
}

func NewResolver(store *Store, tokens TokenSourcer) *Resolver {
	return &Resolver{store: store, tokens: tokens}
}

func (r *Resolver) For(ctx context.Context, email string) Backend {
	if r.tokens == nil || email == "" {
		return r.store
	}
	ts, err := r.tokens.TokenSource(ctx, email)
	if err != nil {
		log.Printf("calendar credentials for %s unavailable: %v", email, err)
		return r.store
	}
	if ts == nil {
		return r.store
	}
	g, err := NewGoogleBackend(ctx, email, oauth2.NewClient(ctx, ts))
	if err != nil {
		log.Printf("google calendar backend for %s: %v", email, err)
		return r.store
	}
	return g
}
