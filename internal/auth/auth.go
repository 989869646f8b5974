// Package auth supplies access tokens to source plugins. Two modes exist:
// long-lived static tokens configured per source, and delegated OAuth
// backed by a refreshing token source. Token acquisition (the browser
// flow) is outside this package; it only hands out currently-valid tokens.
package auth

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// Provider is the token lookup contract Static, OAuth, and Chain satisfy.
type Provider interface {
	ValidToken(ctx context.Context, sourceID string) (string, error)
}

// Chain consults providers in order and returns the first non-empty token.
type Chain []Provider

func (c Chain) ValidToken(ctx context.Context, sourceID string) (string, error) {
	for _, p := range c {
		tok, err := p.ValidToken(ctx, sourceID)
		if err != nil {
			return "", err
		}
		if tok != "" {
			return tok, nil
		}
	}
	return "", nil
}

// Static maps source id to a long-lived token. The zero value is usable.
type Static map[string]string

// ValidToken returns the configured token, or "" when the source has none.
func (s Static) ValidToken(_ context.Context, sourceID string) (string, error) {
	return s[sourceID], nil
}

// OAuth hands out tokens from per-source oauth2 token sources, refreshing
// transparently through the oauth2 package.
type OAuth struct {
	mu      sync.RWMutex
	sources map[string]oauth2.TokenSource
}

// NewOAuth creates an empty OAuth provider.
func NewOAuth() *OAuth {
	return &OAuth{sources: make(map[string]oauth2.TokenSource)}
}

// Bind associates a source id with a stored token under the given oauth2
// config. ReuseTokenSource caches the access token and refreshes it with
// the refresh token only when expired.
func (o *OAuth) Bind(sourceID string, cfg *oauth2.Config, tok *oauth2.Token) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sources[sourceID] = oauth2.ReuseTokenSource(tok, cfg.TokenSource(context.Background(), tok))
}

// ValidToken returns a currently-valid access token for the source, or ""
// when the source has no bound token.
func (o *OAuth) ValidToken(_ context.Context, sourceID string) (string, error) {
	o.mu.RLock()
	ts, ok := o.sources[sourceID]
	o.mu.RUnlock()
	if !ok {
		return "", nil
	}
	tok, err := ts.Token()
	if err != nil {
		return "", fmt.Errorf("refresh token for %s: %w", sourceID, err)
	}
	return tok.AccessToken, nil
}
