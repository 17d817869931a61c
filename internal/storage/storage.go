// Package storage persists attachment bytes and hands back an opaque locator.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/config"
)

// Store is the attachment blob store.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, locator string) ([]byte, error)
}

// ErrNotFound is returned by Get for an unknown locator.
var ErrNotFound = errors.New("storage: object not found")

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._@-]+`)

// AttachmentKey lays objects out as attachments/<sender>/<YYYY-MM-DD>/<ticket>/<n>-<filename>.
// The ticket segment and the part number keep same-named files from different
// tickets, or from one message, on separate keys since stores overwrite on Put.
func AttachmentKey(sender string, at time.Time, ticketID string, n int, filename string) string {
	return path.Join("attachments",
		sanitize(sender, "unknown"),
		at.UTC().Format("2006-01-02"),
		sanitize(ticketID, "unassigned"),
		fmt.Sprintf("%d-%s", n, sanitize(filename, "attachment")))
}

func sanitize(s, fallback string) string {
	s = path.Base(strings.ReplaceAll(strings.TrimSpace(s), `\`, "/"))
	s = strings.Trim(unsafeChars.ReplaceAllString(s, "_"), "._")
	if s == "" {
		return fallback
	}
	return s
}

// New returns an S3 store when a bucket is configured and a local store otherwise.
// If the S3 client cannot be built it falls back to local disk.
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UseS3() {
		s3Store, err := NewS3Store(ctx, cfg)
		if err == nil {
			logger.Info("attachment storage: s3", zap.String("bucket", cfg.Bucket))
			return s3Store
		}
		logger.Warn("s3 storage unavailable, falling back to local disk", zap.Error(err))
	}
	logger.Info("attachment storage: local", zap.String("dir", cfg.LocalDir))
	return NewLocalStore(cfg.LocalDir)
}

func wrap(op, key string, err error) error {
	return fmt.Errorf("storage %s %s: %w", op, key, err)
}
