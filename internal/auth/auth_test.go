package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestStaticValidToken(t *testing.T) {
	s := Static{"my-hubspot": "pat-abc"}

	tok, err := s.ValidToken(context.Background(), "my-hubspot")
	if err != nil || tok != "pat-abc" {
		t.Errorf("token = %q, %v", tok, err)
	}

	tok, err = s.ValidToken(context.Background(), "unknown")
	if err != nil || tok != "" {
		t.Errorf("unknown source = %q, %v, want empty", tok, err)
	}

	var zero Static
	if tok, err := zero.ValidToken(context.Background(), "x"); err != nil || tok != "" {
		t.Errorf("zero value = %q, %v", tok, err)
	}
}

func TestOAuthValidToken(t *testing.T) {
	o := NewOAuth()

	// Unbound source resolves to "" without error.
	tok, err := o.ValidToken(context.Background(), "nope")
	if err != nil || tok != "" {
		t.Errorf("unbound = %q, %v", tok, err)
	}

	// A still-valid token is handed out as-is, no refresh round trip.
	o.Bind("src", &oauth2.Config{}, &oauth2.Token{
		AccessToken: "live-token",
		Expiry:      time.Now().Add(time.Hour),
	})
	tok, err = o.ValidToken(context.Background(), "src")
	if err != nil {
		t.Fatal(err)
	}
	if tok != "live-token" {
		t.Errorf("token = %q", tok)
	}
}

func TestOAuthRefreshesExpiredToken(t *testing.T) {
	refreshes := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes++
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.Form.Get("refresh_token") != "refresh-me" {
			t.Errorf("refresh_token = %q", r.Form.Get("refresh_token"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fresh-token",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	o := NewOAuth()
	// No access token at all: the first lookup must hit the token endpoint.
	o.Bind("src", &oauth2.Config{
		ClientID: "cid",
		Endpoint: oauth2.Endpoint{TokenURL: srv.URL},
	}, &oauth2.Token{RefreshToken: "refresh-me"})

	tok, err := o.ValidToken(context.Background(), "src")
	if err != nil {
		t.Fatal(err)
	}
	if tok != "fresh-token" {
		t.Errorf("token = %q", tok)
	}
	if refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", refreshes)
	}

	// The refreshed token is reused while valid.
	if _, err := o.ValidToken(context.Background(), "src"); err != nil {
		t.Fatal(err)
	}
	if refreshes != 1 {
		t.Errorf("refreshes after reuse = %d, want 1", refreshes)
	}
}

func TestChain(t *testing.T) {
	oa := NewOAuth()
	oa.Bind("delegated", &oauth2.Config{}, &oauth2.Token{
		AccessToken: "oauth-token",
		Expiry:      time.Now().Add(time.Hour),
	})
	chain := Chain{oa, Static{"static-src": "pat-1", "delegated": "shadowed"}}

	tok, err := chain.ValidToken(context.Background(), "delegated")
	if err != nil || tok != "oauth-token" {
		t.Errorf("delegated = %q, %v, want oauth-token", tok, err)
	}

	// Falls through to the static map when the first provider has nothing.
	tok, err = chain.ValidToken(context.Background(), "static-src")
	if err != nil || tok != "pat-1" {
		t.Errorf("static = %q, %v", tok, err)
	}

	tok, err = chain.ValidToken(context.Background(), "unknown")
	if err != nil || tok != "" {
		t.Errorf("unknown = %q, %v", tok, err)
	}
}
