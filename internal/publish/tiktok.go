// Package publish posts videos to TikTok through the Content Posting API.
//
// Publishing is plain sequential HTTP: an init call hands TikTok a public
// video URL to pull, and a status call reports how processing went.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultAPIBaseURL is the TikTok open API host.
const DefaultAPIBaseURL = "https://open.tiktokapis.com"

const (
	videoInitEndpoint   = "/v2/post/publish/video/init/"
	statusFetchEndpoint = "/v2/post/publish/status/fetch/"

	// DefaultPrivacyLevel is applied when a post does not specify one.
	DefaultPrivacyLevel = "PUBLIC_TO_EVERYONE"
)

// Post describes a video to publish.
type Post struct {
	Title                 string
	VideoURL              string
	PrivacyLevel          string
	DisableDuet           bool
	DisableComment        bool
	DisableStitch         bool
	VideoCoverTimestampMS *int64
}

// Status is the processing state of a published post.
type Status struct {
	Status     string `json:"status"`
	FailReason string `json:"fail_reason"`
	UploadedAt int64  `json:"uploaded_at"`
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client calls the TikTok Content Posting API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a publishing client. baseURL falls back to
// DefaultAPIBaseURL when empty.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PostVideo initiates a PULL_FROM_URL video post and returns the publish id
// TikTok assigns for status tracking.
func (c *Client) PostVideo(ctx context.Context, accessToken string, post Post) (string, error) {
	if post.PrivacyLevel == "" {
		post.PrivacyLevel = DefaultPrivacyLevel
	}

	postInfo := map[string]any{
		"title":           post.Title,
		"privacy_level":   post.PrivacyLevel,
		"disable_duet":    post.DisableDuet,
		"disable_comment": post.DisableComment,
		"disable_stitch":  post.DisableStitch,
	}
	if post.VideoCoverTimestampMS != nil {
		postInfo["video_cover_timestamp_ms"] = *post.VideoCoverTimestampMS
	}

	payload := map[string]any{
		"post_info": postInfo,
		"source_info": map[string]string{
			"source":    "PULL_FROM_URL",
			"video_url": post.VideoURL,
		},
	}

	var data struct {
		PublishID string `json:"publish_id"`
	}
	if err := c.call(ctx, videoInitEndpoint, accessToken, payload, &data); err != nil {
		return "", err
	}
	return data.PublishID, nil
}

// FetchStatus returns the current processing status of a post.
func (c *Client) FetchStatus(ctx context.Context, accessToken, publishID string) (*Status, error) {
	payload := map[string]string{"publish_id": publishID}

	var status Status
	if err := c.call(ctx, statusFetchEndpoint, accessToken, payload, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// envelope is TikTok's standard response wrapper. A request only succeeded
// when HTTP status is 200 AND error.code is "ok".
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call performs an authenticated POST and decodes the data payload into out.
func (c *Client) call(ctx context.Context, endpoint, accessToken string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request for %s: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request for %s: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d: %s", endpoint, resp.StatusCode, respBody)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("decoding response from %s: %w", endpoint, err)
	}
	if env.Error.Code != "ok" {
		return fmt.Errorf("%s rejected request: %s (%s)", endpoint, env.Error.Message, env.Error.Code)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding data from %s: %w", endpoint, err)
		}
	}
	return nil
}
