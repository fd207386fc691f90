package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/omnipilot/tokenvault/internal/blobstore"
)

// Refresher exchanges a refresh token for a new token set on behalf of the
// manager. Implementations make a single attempt; the manager never retries.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken, accountID string) (*Record, error)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRefresher sets the client used to refresh expired tokens. Without one,
// expired records simply yield no token.
func WithRefresher(r Refresher) ManagerOption {
	return func(m *Manager) {
		m.refresher = r
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager owns every read/modify/write sequence against the shared token
// document. Mutations (Save, Delete, the save after a successful refresh)
// are serialized behind one process-wide mutex so that two in-process
// operations never interleave their fetch-modify-store sequences.
//
// The backing store offers no compare-and-swap, so a concurrent mutation from
// another process can still drop one of two overlapping updates
// (last-writer-wins on the whole document). That is a property of the store's
// contract, not something the manager papers over.
type Manager struct {
	store     blobstore.Store
	objectKey string
	refresher Refresher
	logger    *slog.Logger
	now       func() time.Time

	mu sync.Mutex
}

// NewManager creates a Manager persisting the collection under objectKey.
func NewManager(store blobstore.Store, objectKey string, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		objectKey: objectKey,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// loadCollection fetches and decodes the whole token document.
//
// A missing document is an empty collection, not an error. A document that
// fails to decode is also treated as empty to keep the manager available,
// but that case is logged loudly since it conflates corruption with absence.
// Backend failures other than not-found are propagated.
func (m *Manager) loadCollection(ctx context.Context) (Collection, error) {
	data, err := m.store.Get(ctx, m.objectKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return Collection{}, nil
		}
		return nil, fmt.Errorf("loading token document %s: %w", m.objectKey, err)
	}

	c, err := decodeCollection(data)
	if err != nil {
		m.logger.ErrorContext(ctx, "token document is malformed, treating as empty",
			"key", m.objectKey, "error", err)
		return Collection{}, nil
	}
	return c, nil
}

// storeCollection encodes and writes the whole token document.
func (m *Manager) storeCollection(ctx context.Context, c Collection) error {
	data, err := encodeCollection(c)
	if err != nil {
		return err
	}
	if err := m.store.Put(ctx, m.objectKey, data); err != nil {
		return fmt.Errorf("storing token document %s: %w", m.objectKey, err)
	}
	return nil
}

// Load returns the record for the given account, or nil if none exists.
func (m *Manager) Load(ctx context.Context, accountID string) (*Record, error) {
	c, err := m.loadCollection(ctx)
	if err != nil {
		return nil, err
	}
	return c[accountID], nil
}

// Save upserts the record under accountID and persists the whole collection.
// If the record has no absolute expiry yet, it is derived once from the
// relative expires_in; it is never recomputed afterwards. Returns the
// persisted record. A nil record is a no-op.
func (m *Manager) Save(ctx context.Context, accountID string, rec *Record) (*Record, error) {
	if rec == nil {
		return nil, nil
	}
	if accountID == "" {
		accountID = rec.OpenID
	}
	if accountID == "" {
		return nil, fmt.Errorf("saving record: no account id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ExpiresAt == 0 && rec.ExpiresIn != 0 {
		rec.ExpiresAt = m.now().Unix() + rec.ExpiresIn
	}

	c, err := m.loadCollection(ctx)
	if err != nil {
		return nil, err
	}
	c[accountID] = rec

	if err := m.storeCollection(ctx, c); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetAccessToken returns a valid access token for the account, refreshing it
// through the Refresher when expired. Returns an empty token when no record
// exists, when an expired record cannot refresh, or when the refresh attempt
// fails; only store failures surface as errors.
func (m *Manager) GetAccessToken(ctx context.Context, accountID string) (string, error) {
	rec, err := m.Load(ctx, accountID)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", nil
	}

	// Fast path: still valid, no network call
	if !rec.Expired(m.now()) {
		return rec.AccessToken, nil
	}

	if !rec.CanRefresh() {
		m.logger.DebugContext(ctx, "token expired and has no refresh token", "account", accountID)
		return "", nil
	}
	if m.refresher == nil {
		m.logger.WarnContext(ctx, "token expired but no refresher is configured", "account", accountID)
		return "", nil
	}

	fresh, err := m.refresher.Refresh(ctx, rec.RefreshToken, accountID)
	if err != nil {
		m.logger.ErrorContext(ctx, "token refresh failed", "account", accountID, "error", err)
		return "", nil
	}

	// Save re-derives expires_at from the new expires_in
	saved, err := m.Save(ctx, accountID, fresh)
	if err != nil {
		return "", err
	}
	return saved.AccessToken, nil
}

// ListAccounts returns the account identifiers present in the collection.
func (m *Manager) ListAccounts(ctx context.Context) ([]string, error) {
	c, err := m.loadCollection(ctx)
	if err != nil {
		return nil, err
	}
	return c.Accounts(), nil
}

// Delete removes the record for the account and persists the collection.
// Reports whether a record existed; deleting an absent account writes nothing.
func (m *Manager) Delete(ctx context.Context, accountID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.loadCollection(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := c[accountID]; !ok {
		return false, nil
	}

	delete(c, accountID)
	if err := m.storeCollection(ctx, c); err != nil {
		return false, err
	}
	return true, nil
}

// Exists reports whether a record is stored for the account.
func (m *Manager) Exists(ctx context.Context, accountID string) (bool, error) {
	rec, err := m.Load(ctx, accountID)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// Dump returns the full collection for diagnostics.
func (m *Manager) Dump(ctx context.Context) (Collection, error) {
	return m.loadCollection(ctx)
}
