package tokenstore

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRecordRoundTripPreservesUnknownFields(t *testing.T) {
	input := `{
		"access_token": "t1",
		"refresh_token": "r1",
		"open_id": "u1",
		"token_type": "Bearer",
		"scope": "user.info.basic,video.publish",
		"expires_in": 3600,
		"expires_at": 1700003600,
		"captcha": "none",
		"log_id": "20240101123456ABCDEF"
	}`

	var rec Record
	if err := json.Unmarshal([]byte(input), &rec); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if rec.AccessToken != "t1" || rec.RefreshToken != "r1" || rec.OpenID != "u1" {
		t.Errorf("typed fields not decoded: %+v", rec)
	}
	if rec.ExpiresIn != 3600 || rec.ExpiresAt != 1700003600 {
		t.Errorf("numeric fields not decoded: expires_in=%d expires_at=%d", rec.ExpiresIn, rec.ExpiresAt)
	}
	if len(rec.Extra) != 2 {
		t.Fatalf("Extra = %v, want captcha and log_id", rec.Extra)
	}

	out, err := json.Marshal(&rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(out, &fields); err != nil {
		t.Fatalf("Unmarshal output: %v", err)
	}
	if fields["captcha"] != "none" {
		t.Errorf("captcha = %v, want none", fields["captcha"])
	}
	if fields["log_id"] != "20240101123456ABCDEF" {
		t.Errorf("log_id = %v, not preserved", fields["log_id"])
	}
	if fields["access_token"] != "t1" {
		t.Errorf("access_token = %v, want t1", fields["access_token"])
	}
}

func TestRecordDecodesFractionalExpiry(t *testing.T) {
	// Earlier deployments persisted expires_at as a float timestamp
	var rec Record
	if err := json.Unmarshal([]byte(`{"access_token":"t1","expires_at":1700003600.789}`), &rec); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if rec.ExpiresAt != 1700003600 {
		t.Errorf("ExpiresAt = %d, want 1700003600", rec.ExpiresAt)
	}
}

func TestRecordExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name      string
		expiresAt int64
		want      bool
	}{
		{"future expiry", now.Unix() + 60, false},
		{"past expiry", now.Unix() - 60, true},
		{"exactly now", now.Unix(), true},
		{"unknown expiry", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &Record{AccessToken: "t1", ExpiresAt: tt.expiresAt}
			if got := rec.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeCollection(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLen  int
		wantErr  bool
		wantKeys []string
	}{
		{"empty input", "", 0, false, nil},
		{"empty object", "{}", 0, false, nil},
		{"null document", "null", 0, false, nil},
		{"two accounts", `{"b":{"access_token":"t2"},"a":{"access_token":"t1"}}`, 2, false, []string{"a", "b"}},
		{"malformed", "{oops", 0, true, nil},
		{"wrong shape", `[1,2]`, 0, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := decodeCollection([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeCollection: %v", err)
			}
			if len(c) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(c), tt.wantLen)
			}
			accounts := c.Accounts()
			for i, key := range tt.wantKeys {
				if accounts[i] != key {
					t.Errorf("Accounts() = %v, want %v", accounts, tt.wantKeys)
					break
				}
			}
		})
	}
}

func TestEncodeCollectionDeterministic(t *testing.T) {
	c := Collection{
		"u2": {AccessToken: "t2"},
		"u1": {AccessToken: "t1", Extra: map[string]json.RawMessage{"note": json.RawMessage(`"x"`)}},
	}

	first, err := encodeCollection(c)
	if err != nil {
		t.Fatalf("encodeCollection: %v", err)
	}
	for range 10 {
		again, err := encodeCollection(c)
		if err != nil {
			t.Fatalf("encodeCollection: %v", err)
		}
		if string(again) != string(first) {
			t.Fatal("encoding is not deterministic")
		}
	}

	// Round trip
	decoded, err := decodeCollection(first)
	if err != nil {
		t.Fatalf("decodeCollection: %v", err)
	}
	if decoded["u1"].AccessToken != "t1" || decoded["u2"].AccessToken != "t2" {
		t.Errorf("round trip lost records: %+v", decoded)
	}
}
