// Package refresh performs the refresh_token grant against the TikTok
// authorization server on behalf of the token lifecycle manager.
package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/omnipilot/tokenvault/internal/tokenstore"
)

// DefaultTokenURL is TikTok's OAuth v2 token endpoint.
const DefaultTokenURL = "https://open.tiktokapis.com/v2/oauth/token/"

// knownExtraFields lists the token response fields outside oauth2.Token's
// typed surface that must be preserved on the stored record. The oauth2
// package keeps the raw response private; Extra() is the only way in.
var knownExtraFields = []string{
	"expires_in",
	"refresh_expires_in",
	"open_id",
	"scope",
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTransport sets a custom base transport for token refresh requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.baseTransport = transport
	}
}

// Client exchanges refresh tokens for new token sets. Each Refresh call is a
// single attempt; retry policy belongs to callers.
type Client struct {
	conf          *oauth2.Config
	baseTransport http.RoundTripper
}

// Compile-time check to ensure Client implements tokenstore.Refresher
var _ tokenstore.Refresher = (*Client)(nil)

// NewClient creates a refresh client for the given TikTok app credentials.
// tokenURL falls back to DefaultTokenURL when empty.
func NewClient(clientKey, clientSecret, tokenURL string, opts ...ClientOption) *Client {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	c := &Client{
		conf: &oauth2.Config{
			ClientID:     clientKey,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		baseTransport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh exchanges refreshToken for a new token set. Any non-2xx response,
// transport error, or malformed response is returned as an error; the caller
// decides how failures surface.
func (c *Client) Refresh(ctx context.Context, refreshToken, accountID string) (*tokenstore.Record, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token for account %s", accountID)
	}

	// TikTok names its client credential fields client_key/client_secret.
	// The oauth2 package always sends client_id, so the transport rewrites
	// the form field before the request leaves.
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &clientKeyTransport{
			base: c.baseTransport,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)

	ts := c.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing token for account %s: %w", accountID, err)
	}

	return recordFromToken(tok), nil
}

// recordFromToken converts the oauth2 token response into a storable record,
// recovering the extra response fields the typed token drops.
func recordFromToken(tok *oauth2.Token) *tokenstore.Record {
	rec := &tokenstore.Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}

	for _, field := range knownExtraFields {
		v := tok.Extra(field)
		if v == nil {
			continue
		}
		switch field {
		case "expires_in":
			rec.ExpiresIn = extraInt(v)
		case "refresh_expires_in":
			rec.RefreshExpiresIn = extraInt(v)
		case "open_id":
			if s, ok := v.(string); ok {
				rec.OpenID = s
			}
		case "scope":
			if s, ok := v.(string); ok {
				rec.Scope = s
			}
		}
	}
	return rec
}

// extraInt converts a value from oauth2.Token.Extra to seconds. JSON numbers
// arrive as float64, form-encoded responses as string.
func extraInt(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		var f float64
		_, _ = fmt.Sscanf(n, "%g", &f)
		return int64(f)
	default:
		return 0
	}
}

// clientKeyTransport rewrites the client_id form field of outgoing token
// requests to TikTok's client_key. The oauth2 package guarantees this
// transport only receives token endpoint requests.
type clientKeyTransport struct {
	base http.RoundTripper
}

// Compile-time check that clientKeyTransport implements http.RoundTripper.
var _ http.RoundTripper = (*clientKeyTransport)(nil)

// RoundTrip intercepts token refresh requests and renames the client
// credential field in the form body.
func (t *clientKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// The body is consumed entirely and replaced on the cloned request.
	defer func() { _ = req.Body.Close() }()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing form data: %w", err)
	}

	if id := form.Get("client_id"); id != "" {
		form.Del("client_id")
		form.Set("client_key", id)
	}

	encoded := form.Encode()
	newReq := req.Clone(req.Context())
	newReq.Body = io.NopCloser(strings.NewReader(encoded))
	newReq.ContentLength = int64(len(encoded))
	newReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return t.base.RoundTrip(newReq)
}
