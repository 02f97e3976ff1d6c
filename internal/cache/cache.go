// Package cache implements the TTL'd query-result cache (§4.7, C7) backing
// the ephemeral explorer job type: a successful ad-hoc query result is
// cached so an identical follow-up query within the TTL window is served
// without re-hitting the source connector.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/synqx/core/internal/chunk"
)

const defaultTTL = 300 * time.Second

// Entry is the cached payload: the chunk result plus a small metadata bag
// (count, total_count and columns) returned alongside it.
type Entry struct {
	Metadata map[string]any `json:"metadata"`
	Result   chunk.Chunk    `json:"result"`
}

// ResultCache is a Redis-backed cache keyed by
// query_result:<connection_id>:<sha256(canonicalJSON(payload))>, per
// SPEC_FULL.md §4.7 (standardized on sha256 for every content hash in this
// system, see DESIGN.md Open Question resolution).
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New returns a ResultCache backed by client, with ttl defaulting to 300s
// when zero.
func New(client *redis.Client, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &ResultCache{client: client, ttl: ttl}
}

// Key computes the cache key for a connectionID + arbitrary JSON-able
// query payload (query text, params, limit, ...).
func Key(connectionID string, payload any) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("cache: marshal payload: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return fmt.Sprintf("query_result:%s:%s", connectionID, hex.EncodeToString(sum[:])), nil
}

// Get returns the cached Entry for key, and false if absent or expired.
func (c *ResultCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: get %s: %w", key, err)
	}

	var entry Entry
	dec := gobDecoder(raw)
	if err := dec.Decode(&entry); err != nil {
		return Entry{}, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return entry, true, nil
}

// Set stores entry under key with the cache's configured TTL.
func (c *ResultCache) Set(ctx context.Context, key string, entry Entry) error {
	var buf bytes.Buffer
	if err := gobEncoder(&buf).Encode(entry); err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, buf.Bytes(), c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Invalidate removes key from the cache (used when a connection's
// underlying data is known to have changed).
func (c *ResultCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
