// Package cache provides the exact-match and semantic result cache for
// synthesized query responses. All operations are best-effort: a cache
// failure is logged and swallowed, never surfaced to query processing.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/intentql/intentql-engine/pkg/models"
)

const exactKeyPrefix = "query:"

// SemanticMatcher scores stored questions against a new one. External
// collaborator; typically embedding-backed.
type SemanticMatcher interface {
	// FindSimilar returns the best match for the question, or nil when
	// nothing scores above the matcher's floor.
	FindSimilar(ctx context.Context, question string) (*models.SemanticMatch, error)

	// Index registers a question under a cache key for future matching.
	Index(ctx context.Context, question, key string, ttl time.Duration) error

	// InvalidateTable drops indexed questions associated with a table.
	InvalidateTable(ctx context.Context, tableName string) error
}

// Options configures cache TTLs and the semantic acceptance threshold.
type Options struct {
	ExactTTL            time.Duration
	SemanticTTL         time.Duration
	SimilarityThreshold float64
}

// DefaultOptions returns 1h exact, 24h semantic, 0.85 similarity.
func DefaultOptions() Options {
	return Options{
		ExactTTL:            time.Hour,
		SemanticTTL:         24 * time.Hour,
		SimilarityThreshold: 0.85,
	}
}

// WarmupReport summarizes a cold-cache probe over common queries.
type WarmupReport struct {
	Probed int
	Hits   int
	Misses []string
}

// QueryCache layers exact-hash and semantic lookup over a Store. The
// matcher is optional; without one, semantic operations are no-ops.
type QueryCache struct {
	store   Store
	matcher SemanticMatcher
	opts    Options
	logger  *zap.Logger
	now     func() time.Time
}

// NewQueryCache creates a cache over the given store. matcher may be nil.
func NewQueryCache(store Store, matcher SemanticMatcher, opts Options, logger *zap.Logger) *QueryCache {
	if opts.ExactTTL <= 0 {
		opts.ExactTTL = DefaultOptions().ExactTTL
	}
	if opts.SemanticTTL <= 0 {
		opts.SemanticTTL = DefaultOptions().SemanticTTL
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = DefaultOptions().SimilarityThreshold
	}
	return &QueryCache{
		store:   store,
		matcher: matcher,
		opts:    opts,
		logger:  logger.Named("cache"),
		now:     time.Now,
	}
}

// ExactKey computes the stable key for a query text: sha256 over the
// normalized (trimmed, lowercased, whitespace-collapsed) form.
func ExactKey(question string) string {
	sum := sha256.Sum256([]byte(normalize(question)))
	return exactKeyPrefix + hex.EncodeToString(sum[:])
}

func normalize(question string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(question))), " ")
}

// GetExact looks up the question by exact hash. Returns nil on miss, expiry
// or storage failure.
func (c *QueryCache) GetExact(ctx context.Context, question string) *models.QueryResponse {
	entry, err := c.store.Get(ctx, ExactKey(question))
	if err != nil {
		c.logger.Warn("cache read failed", zap.Error(err))
		return nil
	}
	if entry == nil || entry.Value == nil || entry.Expired(c.now()) {
		return nil
	}
	hit := *entry.Value
	hit.FromCache = true
	return &hit
}

// GetSemantic asks the matcher for the closest stored question and returns
// its cached response when similarity clears the threshold.
func (c *QueryCache) GetSemantic(ctx context.Context, question string) *models.QueryResponse {
	if c.matcher == nil {
		return nil
	}
	match, err := c.matcher.FindSimilar(ctx, question)
	if err != nil {
		c.logger.Warn("semantic lookup failed", zap.Error(err))
		return nil
	}
	if match == nil || match.Similarity < c.opts.SimilarityThreshold {
		return nil
	}
	entry, err := c.store.Get(ctx, match.Key)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", match.Key), zap.Error(err))
		return nil
	}
	if entry == nil || entry.Value == nil || entry.Expired(c.now()) {
		return nil
	}
	c.logger.Debug("semantic cache hit",
		zap.Float64("similarity", match.Similarity),
		zap.String("key", match.Key))
	hit := *entry.Value
	hit.FromCache = true
	return &hit
}

// Put stores the response under the question's exact key and indexes it for
// semantic matching. ttl <= 0 uses the default exact TTL. Failures are
// logged only.
func (c *QueryCache) Put(ctx context.Context, question string, resp *models.QueryResponse, ttl time.Duration) {
	if resp == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.opts.ExactTTL
	}

	key := ExactKey(question)
	now := c.now()
	entry := &models.CacheEntry{
		Key:       key,
		Value:     resp,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := c.store.Set(ctx, entry); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return
	}

	if c.matcher != nil {
		if err := c.matcher.Index(ctx, question, key, c.opts.SemanticTTL); err != nil {
			c.logger.Warn("semantic index failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// Invalidate removes one entry by exact key.
func (c *QueryCache) Invalidate(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Warn("cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateByPrefix removes every entry whose key starts with the prefix.
func (c *QueryCache) InvalidateByPrefix(ctx context.Context, prefix string) int {
	removed, err := c.store.DeleteFunc(ctx, func(entry *models.CacheEntry) bool {
		return strings.HasPrefix(entry.Key, prefix)
	})
	if err != nil {
		c.logger.Warn("cache prefix invalidation failed", zap.String("prefix", prefix), zap.Error(err))
		return 0
	}
	return removed
}

// InvalidateOnChange reacts to a data-change event: it drops the semantic
// index for the table and every exact entry whose SQL references it.
func (c *QueryCache) InvalidateOnChange(ctx context.Context, event models.DataChangeEvent) {
	table := strings.ToLower(event.TableName)
	if table == "" {
		return
	}

	if c.matcher != nil {
		if err := c.matcher.InvalidateTable(ctx, event.TableName); err != nil {
			c.logger.Warn("semantic table invalidation failed",
				zap.String("table", event.TableName), zap.Error(err))
		}
	}

	removed, err := c.store.DeleteFunc(ctx, func(entry *models.CacheEntry) bool {
		return entry.Value != nil && strings.Contains(strings.ToLower(entry.Value.SQL), table)
	})
	if err != nil {
		c.logger.Warn("cache table invalidation failed",
			zap.String("table", event.TableName), zap.Error(err))
		return
	}
	c.logger.Info("cache invalidated for table change",
		zap.String("table", event.TableName),
		zap.String("change_type", event.ChangeType),
		zap.Int("entries_removed", removed))
}

// Warmup probes the cache for a list of common questions without populating
// it. The report names the questions that would miss cold.
func (c *QueryCache) Warmup(ctx context.Context, questions []string) WarmupReport {
	report := WarmupReport{Probed: len(questions)}
	for _, q := range questions {
		entry, err := c.store.Get(ctx, ExactKey(q))
		if err != nil {
			c.logger.Warn("warmup probe failed", zap.Error(err))
			report.Misses = append(report.Misses, q)
			continue
		}
		if entry != nil && entry.Value != nil && !entry.Expired(c.now()) {
			report.Hits++
		} else {
			report.Misses = append(report.Misses, q)
		}
	}
	return report
}
