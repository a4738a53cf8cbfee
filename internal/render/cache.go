package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cachePrefix = "invoicing:pdf:"

// PDFCache stores rendered PDFs in Redis. Keys embed the updated_at of the
// document and of its contact so an edit to either never serves a stale file.
type PDFCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPDFCache returns nil when client is nil; a nil cache always misses.
func NewPDFCache(client *redis.Client, ttl time.Duration) *PDFCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &PDFCache{client: client, ttl: ttl}
}

// Key identifies one version of a document as printed for one version of
// its contact.
func Key(companyID int64, docType string, id int64, updatedAt, contactUpdatedAt time.Time) string {
	return fmt.Sprintf("%s%d:%s:%d:%d:%d", cachePrefix, companyID, docType, id, updatedAt.UnixNano(), contactUpdatedAt.UnixNano())
}

// Get returns the cached PDF and whether it was present.
func (c *PDFCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	body, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

// Set stores pdf under key for the configured TTL.
func (c *PDFCache) Set(ctx context.Context, key string, pdf []byte) error {
	if c == nil {
		return nil
	}
	return c.client.Set(ctx, key, pdf, c.ttl).Err()
}
