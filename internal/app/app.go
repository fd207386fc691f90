package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/omnipilot/tokenvault/internal/api"
	"github.com/omnipilot/tokenvault/internal/blobstore"
	"github.com/omnipilot/tokenvault/internal/publish"
	"github.com/omnipilot/tokenvault/internal/refresh"
	"github.com/omnipilot/tokenvault/internal/secrets"
	"github.com/omnipilot/tokenvault/internal/tokenstore"
	"github.com/omnipilot/tokenvault/internal/upload"
)

// App orchestrates the lifecycle of the API server and related services.
type App struct {
	cfg    *Config
	server *api.Server
}

// New creates a new App instance. Secrets are resolved eagerly so
// misconfiguration fails at startup, not on the first request.
func New(ctx context.Context, cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	source, err := cfg.Secrets.NewSource()
	if err != nil {
		return nil, fmt.Errorf("failed to create secret source: %w", err)
	}

	clientKey, err := resolveSecret(ctx, source, cfg.TikTok.ClientKey, SecretTikTokClientKey)
	if err != nil {
		return nil, fmt.Errorf("resolving tiktok client key: %w", err)
	}
	clientSecret, err := resolveSecret(ctx, source, cfg.TikTok.ClientSecret, SecretTikTokClientSecret)
	if err != nil {
		return nil, fmt.Errorf("resolving tiktok client secret: %w", err)
	}

	refreshClient := refresh.NewClient(clientKey, clientSecret, cfg.TikTok.TokenURL)

	manager, err := NewManager(ctx, cfg, tokenstore.WithRefresher(refreshClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create token manager: %w", err)
	}

	uploader, err := newUploader(ctx, cfg, source)
	if err != nil {
		return nil, fmt.Errorf("failed to create uploader: %w", err)
	}

	server := api.NewServer(manager, publish.NewClient(cfg.TikTok.APIBaseURL), uploader)

	return &App{
		cfg:    cfg,
		server: server,
	}, nil
}

// NewManager builds the token lifecycle manager over the configured storage
// backend. Shared with the CLI commands that operate on the store directly.
func NewManager(ctx context.Context, cfg *Config, opts ...tokenstore.ManagerOption) (*tokenstore.Manager, error) {
	source, err := cfg.Secrets.NewSource()
	if err != nil {
		return nil, fmt.Errorf("failed to create secret source: %w", err)
	}

	accessKey, secretKey, err := storageCredentials(ctx, cfg, source)
	if err != nil {
		return nil, err
	}

	store, err := blobstore.NewS3Store(blobstore.S3Options{
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		Region:          cfg.Storage.Region,
		Bucket:          cfg.Storage.TokenBucket,
		DisableSSL:      cfg.Storage.DisableSSL,
		ContentType:     "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token blob store: %w", err)
	}

	return tokenstore.NewManager(store, cfg.Storage.TokenObjectKey, opts...), nil
}

// newUploader builds the media uploader writing to the public media bucket.
func newUploader(ctx context.Context, cfg *Config, source secrets.Source) (*upload.Uploader, error) {
	accessKey, secretKey, err := storageCredentials(ctx, cfg, source)
	if err != nil {
		return nil, err
	}

	mediaStore, err := blobstore.NewS3Store(blobstore.S3Options{
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		Region:          cfg.Storage.Region,
		Bucket:          cfg.Media.Bucket,
		DisableSSL:      cfg.Storage.DisableSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create media blob store: %w", err)
	}

	publicBaseURL := cfg.Media.PublicBaseURL
	if publicBaseURL == "" {
		scheme := "https"
		if cfg.Storage.DisableSSL {
			scheme = "http"
		}
		publicBaseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Storage.Endpoint, cfg.Media.Bucket)
	}

	return upload.New(mediaStore, publicBaseURL), nil
}

// storageCredentials resolves the S3 credential pair, preferring inline
// config values over the secret source.
func storageCredentials(ctx context.Context, cfg *Config, source secrets.Source) (string, string, error) {
	accessKey, err := resolveSecret(ctx, source, cfg.Storage.AccessKeyID, SecretStorageAccessKeyID)
	if err != nil {
		return "", "", fmt.Errorf("resolving storage access key: %w", err)
	}
	secretKey, err := resolveSecret(ctx, source, cfg.Storage.SecretAccessKey, SecretStorageSecretAccessKey)
	if err != nil {
		return "", "", fmt.Errorf("resolving storage secret key: %w", err)
	}
	return accessKey, secretKey, nil
}

// resolveSecret returns the explicit config value when set, otherwise the
// named secret from the source.
func resolveSecret(ctx context.Context, source secrets.Source, explicit, name string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	return source.Get(ctx, name)
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting api server", "address", address)
	serverErrCh, err := a.server.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("api server startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.server.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-serverErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "api server runtime error", "error", err)
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
