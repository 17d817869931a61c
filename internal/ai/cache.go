package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

const departmentCachePrefix = "helpdesk:ai:department:"

// CachedClassifier memoizes department labels in Redis. Everything else passes through.
type CachedClassifier struct {
	Classifier
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedClassifier wraps inner. A nil client disables caching.
func NewCachedClassifier(inner Classifier, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedClassifier{Classifier: inner, client: client, ttl: ttl, logger: logger}
}

// ClassifyDepartment checks the cache before calling the model. Cache errors are ignored.
func (c *CachedClassifier) ClassifyDepartment(ctx context.Context, text string) (domain.Department, error) {
	if c.client == nil {
		return c.Classifier.ClassifyDepartment(ctx, text)
	}
	key := departmentCachePrefix + digest(text)
	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if dept, ok := domain.ParseDepartment(cached); ok {
			return dept, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Debug("department cache read failed", zap.Error(err))
	}

	dept, err := c.Classifier.ClassifyDepartment(ctx, text)
	if err != nil {
		return "", err
	}
	if err := c.client.Set(ctx, key, string(dept), c.ttl).Err(); err != nil {
		c.logger.Debug("department cache write failed", zap.Error(err))
	}
	return dept, nil
}

func digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
