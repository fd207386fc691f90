package refresh

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestRefreshSendsClientKeyForm(t *testing.T) {
	var gotForm url.Values
	var gotContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		gotForm = r.PostForm
		gotContentType = r.Header.Get("Content-Type")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "new-access",
			"refresh_token": "new-refresh",
			"token_type": "Bearer",
			"expires_in": 86400,
			"refresh_expires_in": 31536000,
			"open_id": "u1",
			"scope": "user.info.basic,video.publish"
		}`))
	}))
	defer server.Close()

	client := NewClient("key123", "secret456", server.URL)
	rec, err := client.Refresh(context.Background(), "old-refresh", "u1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if gotContentType != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if got := gotForm.Get("client_key"); got != "key123" {
		t.Errorf("client_key = %q, want key123", got)
	}
	if gotForm.Has("client_id") {
		t.Error("client_id must be rewritten to client_key")
	}
	if got := gotForm.Get("client_secret"); got != "secret456" {
		t.Errorf("client_secret = %q, want secret456", got)
	}
	if got := gotForm.Get("grant_type"); got != "refresh_token" {
		t.Errorf("grant_type = %q, want refresh_token", got)
	}
	if got := gotForm.Get("refresh_token"); got != "old-refresh" {
		t.Errorf("refresh_token = %q, want old-refresh", got)
	}

	if rec.AccessToken != "new-access" || rec.RefreshToken != "new-refresh" {
		t.Errorf("record tokens = %+v", rec)
	}
	if rec.ExpiresIn != 86400 {
		t.Errorf("ExpiresIn = %d, want 86400", rec.ExpiresIn)
	}
	if rec.RefreshExpiresIn != 31536000 {
		t.Errorf("RefreshExpiresIn = %d, want 31536000", rec.RefreshExpiresIn)
	}
	if rec.OpenID != "u1" {
		t.Errorf("OpenID = %q, want u1", rec.OpenID)
	}
	if rec.Scope != "user.info.basic,video.publish" {
		t.Errorf("Scope = %q", rec.Scope)
	}
}

func TestRefreshNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
	}))
	defer server.Close()

	client := NewClient("key123", "secret456", server.URL)
	if _, err := client.Refresh(context.Background(), "revoked", "u1"); err == nil {
		t.Fatal("Refresh should fail on non-2xx response")
	}
}

func TestRefreshEmptyRefreshToken(t *testing.T) {
	client := NewClient("key123", "secret456", "")
	if _, err := client.Refresh(context.Background(), "", "u1"); err == nil {
		t.Fatal("Refresh with empty refresh token should fail without a network call")
	}
}

func TestRefreshSingleAttempt(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient("key123", "secret456", server.URL)
	if _, err := client.Refresh(context.Background(), "rt", "u1"); err == nil {
		t.Fatal("Refresh should fail")
	}
	if calls != 1 {
		t.Errorf("token endpoint called %d times, want 1", calls)
	}
}
