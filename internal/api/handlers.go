package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/omnipilot/tokenvault/internal/publish"
	"github.com/omnipilot/tokenvault/internal/tokenstore"
	"github.com/omnipilot/tokenvault/internal/upload"
)

// handleGetToken returns a valid access token for the account, refreshing it
// transparently when expired.
func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	openID := r.PathValue("open_id")

	token, err := s.tokens.GetAccessToken(ctx, openID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to resolve access token", "account", openID, "error", err)
		writeJSONError(ctx, w, "internal server error", http.StatusInternalServerError)
		return
	}
	if token == "" {
		writeJSONError(ctx, w, fmt.Sprintf("no valid token found for open_id: %s", openID), http.StatusNotFound)
		return
	}

	writeJSON(ctx, w, map[string]string{
		"access_token": token,
		"open_id":      openID,
	}, http.StatusOK)
}

// handleSaveToken upserts a token record for the account.
func (s *Server) handleSaveToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	openID := r.PathValue("open_id")

	var rec tokenstore.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSONError(ctx, w, "invalid token record: "+err.Error(), http.StatusBadRequest)
		return
	}
	if rec.AccessToken == "" {
		writeJSONError(ctx, w, "access_token is required", http.StatusBadRequest)
		return
	}

	saved, err := s.tokens.Save(ctx, openID, &rec)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to save token record", "account", openID, "error", err)
		writeJSONError(ctx, w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, saved, http.StatusOK)
}

// handleListAccounts returns the stored account identifiers.
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accounts, err := s.tokens.ListAccounts(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list accounts", "error", err)
		writeJSONError(ctx, w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, map[string]any{
		"accounts": accounts,
		"total":    len(accounts),
	}, http.StatusOK)
}

// handleDumpAccounts returns the full collection for diagnostics.
func (s *Server) handleDumpAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	collection, err := s.tokens.Dump(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to dump token collection", "error", err)
		writeJSONError(ctx, w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, map[string]any{
		"tokens": collection,
		"total":  len(collection),
	}, http.StatusOK)
}

// handleDeleteAccount removes an account's record.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	openID := r.PathValue("open_id")

	existed, err := s.tokens.Delete(ctx, openID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to delete account", "account", openID, "error", err)
		writeJSONError(ctx, w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !existed {
		writeJSONError(ctx, w, fmt.Sprintf("no token found for open_id: %s", openID), http.StatusNotFound)
		return
	}

	writeJSON(ctx, w, map[string]any{
		"deleted": true,
		"open_id": openID,
	}, http.StatusOK)
}

// postRequest is the body of POST /posts.
type postRequest struct {
	VideoURL              string `json:"video_url"`
	OpenID                string `json:"open_id"`
	Title                 string `json:"title"`
	PrivacyLevel          string `json:"privacy_level"`
	DisableDuet           bool   `json:"disable_duet"`
	DisableComment        bool   `json:"disable_comment"`
	DisableStitch         bool   `json:"disable_stitch"`
	VideoCoverTimestampMS *int64 `json:"video_cover_timestamp_ms"`
}

// handlePost publishes a video from the media bucket to TikTok.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.publisher == nil {
		writeJSONError(ctx, w, "publishing is not configured", http.StatusServiceUnavailable)
		return
	}

	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(ctx, w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.VideoURL == "" || req.OpenID == "" || req.Title == "" {
		writeJSONError(ctx, w, "video_url, open_id, and title are required", http.StatusBadRequest)
		return
	}

	token, err := s.tokens.GetAccessToken(ctx, req.OpenID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to resolve access token", "account", req.OpenID, "error", err)
		writeJSONError(ctx, w, "internal server error", http.StatusInternalServerError)
		return
	}
	if token == "" {
		writeJSONError(ctx, w, "failed to get access token for the specified open_id", http.StatusUnauthorized)
		return
	}

	publishID, err := s.publisher.PostVideo(ctx, token, publish.Post{
		Title:                 req.Title,
		VideoURL:              req.VideoURL,
		PrivacyLevel:          req.PrivacyLevel,
		DisableDuet:           req.DisableDuet,
		DisableComment:        req.DisableComment,
		DisableStitch:         req.DisableStitch,
		VideoCoverTimestampMS: req.VideoCoverTimestampMS,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to post video", "account", req.OpenID, "error", err)
		writeJSONError(ctx, w, "failed to post video: "+err.Error(), http.StatusInternalServerError)
		return
	}

	s.logger.InfoContext(ctx, "video posted", "account", req.OpenID, "publish_id", publishID)

	// Status is not meaningful immediately after init
	select {
	case <-time.After(s.statusDelay):
	case <-ctx.Done():
		writeJSONError(ctx, w, "request cancelled", http.StatusInternalServerError)
		return
	}

	status, err := s.publisher.FetchStatus(ctx, token, publishID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to fetch post status", "publish_id", publishID, "error", err)
		writeJSONError(ctx, w, "failed to fetch post status: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, map[string]any{
		"success":     true,
		"publish_id":  publishID,
		"status":      status.Status,
		"fail_reason": status.FailReason,
		"uploaded_at": status.UploadedAt,
	}, http.StatusOK)
}

// uploadRequest is the body of POST /uploads.
type uploadRequest struct {
	VideoURL string `json:"video_url"`
}

// handleUpload copies a remote video into the media bucket.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.uploader == nil {
		writeJSONError(ctx, w, "uploads are not configured", http.StatusServiceUnavailable)
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(ctx, w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.VideoURL == "" {
		writeJSONError(ctx, w, "video_url is required", http.StatusBadRequest)
		return
	}

	result, err := s.uploader.FromURL(ctx, req.VideoURL)
	if err != nil {
		s.logger.ErrorContext(ctx, "upload failed", "source", req.VideoURL, "error", err)
		if errors.Is(err, upload.ErrSource) {
			writeJSONError(ctx, w, "failed to download video", http.StatusBadRequest)
			return
		}
		writeJSONError(ctx, w, "failed to upload video", http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, map[string]any{
		"success":  true,
		"url":      result.URL,
		"filename": result.Filename,
	}, http.StatusOK)
}

// handleUnmatched keeps unknown paths on the JSON error surface.
func (s *Server) handleUnmatched(w http.ResponseWriter, r *http.Request) {
	writeJSONError(r.Context(), w, "method not allowed", http.StatusMethodNotAllowed)
}
