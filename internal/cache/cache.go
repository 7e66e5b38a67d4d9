// Package cache memoizes successful chat extractions keyed by the request
// that produced them.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/dvloznov/moneychat-nlp/internal/domain"
	"github.com/dvloznov/moneychat-nlp/internal/logger"
	"github.com/dvloznov/moneychat-nlp/internal/metrics"
)

const (
	// KeyPrefix namespaces every entry written by RequestCache.
	KeyPrefix = "nlp:"
	// DefaultTTL bounds how long an extraction result is reused.
	DefaultTTL = time.Hour
	// ContextWindow is the number of trailing context entries that affect the key.
	ContextWindow = 5
)

// Store is a string key-value store with per-entry expiry.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RequestCache stores NLPResponses in a Store. A failing Store never fails
// the request: reads degrade to a miss and writes are skipped.
type RequestCache struct {
	store Store
	ttl   time.Duration
}

// New creates a RequestCache. A zero ttl selects DefaultTTL.
func New(store Store, ttl time.Duration) *RequestCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RequestCache{store: store, ttl: ttl}
}

// Key derives the cache key for msg. Two requests share a key only when the
// message, the user and the trailing context window are identical.
func Key(msg domain.ChatMessage) string {
	h := sha256.New()
	writeField(h, msg.Message)
	writeField(h, msg.UserID)
	for _, c := range TrailingContext(msg.Context) {
		writeField(h, c)
	}
	return KeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// TrailingContext returns the last ContextWindow entries of history.
func TrailingContext(history []string) []string {
	if len(history) > ContextWindow {
		return history[len(history)-ContextWindow:]
	}
	return history
}

// writeField length-prefixes s so that field boundaries are unambiguous.
func writeField(h interface{ Write([]byte) (int, error) }, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	_, _ = h.Write(n[:])
	_, _ = h.Write([]byte(s))
}

// Get returns the cached response for msg, if any.
func (c *RequestCache) Get(ctx context.Context, msg domain.ChatMessage) (*domain.NLPResponse, bool) {
	log := logger.FromContext(ctx)
	key := Key(msg)

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		metrics.ObserveCacheLookup(metrics.CacheError)
		log.Warn().Err(err).Str("cache_key", key).Msg("Cache read failed, treating as miss")
		return nil, false
	}
	if !ok {
		metrics.ObserveCacheLookup(metrics.CacheMiss)
		return nil, false
	}

	var resp domain.NLPResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		metrics.ObserveCacheLookup(metrics.CacheError)
		log.Warn().Err(err).Str("cache_key", key).Msg("Cached entry is corrupt, treating as miss")
		return nil, false
	}

	metrics.ObserveCacheLookup(metrics.CacheHit)
	return &resp, true
}

// Put stores resp for msg. Only successful responses are stored.
func (c *RequestCache) Put(ctx context.Context, msg domain.ChatMessage, resp *domain.NLPResponse) {
	if resp == nil || !resp.Success {
		return
	}
	log := logger.FromContext(ctx)
	key := Key(msg)

	data, err := json.Marshal(resp)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode response for cache")
		return
	}
	if err := c.store.Set(ctx, key, string(data), c.ttl); err != nil {
		log.Warn().Err(err).Str("cache_key", key).Msg("Cache write failed, skipping")
	}
}
