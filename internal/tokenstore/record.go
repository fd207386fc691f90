package tokenstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record holds the stored access/refresh tokens plus metadata for one account.
//
// Fields the lifecycle manager interprets are typed; everything else the
// authorization server returned is carried verbatim in Extra so that a
// round-trip through storage never drops or rewrites unknown fields.
type Record struct {
	AccessToken  string
	RefreshToken string
	OpenID       string
	TokenType    string
	Scope        string

	// ExpiresIn is the relative lifetime in seconds as reported by the
	// authorization server. It is only consulted once, when ExpiresAt is
	// derived at save time.
	ExpiresIn        int64
	RefreshExpiresIn int64

	// ExpiresAt is the absolute expiry as epoch seconds. Zero means unknown,
	// which the manager treats as already expired.
	ExpiresAt int64

	// Extra holds response fields the manager does not interpret.
	Extra map[string]json.RawMessage
}

// Compile-time checks that Record participates in JSON encoding via the
// custom round-trip below.
var (
	_ json.Marshaler   = (*Record)(nil)
	_ json.Unmarshaler = (*Record)(nil)
)

// Expired reports whether the record's access token is no longer valid at the
// given time. A record without a known expiry is considered expired.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt <= now.Unix()
}

// CanRefresh reports whether the record carries a refresh token.
func (r *Record) CanRefresh() bool {
	return r.RefreshToken != ""
}

// MarshalJSON encodes the record as a flat JSON object, merging the typed
// fields with the verbatim extras. Typed fields win on key collision.
func (r *Record) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(r.Extra)+8)
	for key, raw := range r.Extra {
		fields[key] = raw
	}

	if r.AccessToken != "" {
		fields["access_token"] = r.AccessToken
	}
	if r.RefreshToken != "" {
		fields["refresh_token"] = r.RefreshToken
	}
	if r.OpenID != "" {
		fields["open_id"] = r.OpenID
	}
	if r.TokenType != "" {
		fields["token_type"] = r.TokenType
	}
	if r.Scope != "" {
		fields["scope"] = r.Scope
	}
	if r.ExpiresIn != 0 {
		fields["expires_in"] = r.ExpiresIn
	}
	if r.RefreshExpiresIn != 0 {
		fields["refresh_expires_in"] = r.RefreshExpiresIn
	}
	if r.ExpiresAt != 0 {
		fields["expires_at"] = r.ExpiresAt
	}

	return json.Marshal(fields)
}

// UnmarshalJSON decodes a flat JSON object, capturing unknown keys in Extra.
func (r *Record) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	for key, raw := range fields {
		var err error
		switch key {
		case "access_token":
			err = json.Unmarshal(raw, &r.AccessToken)
		case "refresh_token":
			err = json.Unmarshal(raw, &r.RefreshToken)
		case "open_id":
			err = json.Unmarshal(raw, &r.OpenID)
		case "token_type":
			err = json.Unmarshal(raw, &r.TokenType)
		case "scope":
			err = json.Unmarshal(raw, &r.Scope)
		case "expires_in":
			r.ExpiresIn, err = epochSeconds(raw)
		case "refresh_expires_in":
			r.RefreshExpiresIn, err = epochSeconds(raw)
		case "expires_at":
			r.ExpiresAt, err = epochSeconds(raw)
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]json.RawMessage)
			}
			r.Extra[key] = raw
		}
		if err != nil {
			return fmt.Errorf("decoding field %s: %w", key, err)
		}
	}
	return nil
}

// epochSeconds decodes a JSON number that may carry a fractional part.
// Documents written by earlier deployments stored expires_at as a float.
func epochSeconds(raw json.RawMessage) (int64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return int64(f), nil
}
