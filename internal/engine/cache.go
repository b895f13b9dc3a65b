package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/couchcryptid/flight-delay-engine/internal/domain"
	"github.com/couchcryptid/flight-delay-engine/internal/observability"
	"github.com/patrickmn/go-cache"
)

// Predictor scores flight records against an identifiable bundle.
type Predictor interface {
	Predict(rec domain.FlightRecord) (domain.PredictionResult, error)
	BundleID() string
}

// CachedPredictor wraps a Predictor with an in-memory TTL cache. Keys
// include the bundle ID, so entries from a replaced bundle are never served.
type CachedPredictor struct {
	inner   Predictor
	cache   *cache.Cache
	ttl     time.Duration
	metrics *observability.Metrics
}

// NewCachedPredictor creates a cache decorator around a predictor. A zero
// ttl disables caching.
func NewCachedPredictor(inner Predictor, ttl time.Duration, metrics *observability.Metrics) *CachedPredictor {
	return &CachedPredictor{
		inner:   inner,
		cache:   cache.New(ttl, 2*ttl),
		ttl:     ttl,
		metrics: metrics,
	}
}

// BundleID implements Predictor.
func (c *CachedPredictor) BundleID() string { return c.inner.BundleID() }

// Predict implements Predictor. Errors are never cached.
func (c *CachedPredictor) Predict(rec domain.FlightRecord) (domain.PredictionResult, error) {
	if c.ttl <= 0 {
		return c.inner.Predict(rec)
	}
	key, ok := cacheKey(c.inner.BundleID(), rec)
	if !ok {
		return c.inner.Predict(rec)
	}
	if v, found := c.cache.Get(key); found {
		c.metrics.PredictionCache.WithLabelValues("hit").Inc()
		return v.(domain.PredictionResult), nil
	}
	c.metrics.PredictionCache.WithLabelValues("miss").Inc()

	p, err := c.inner.Predict(rec)
	if err != nil {
		return p, err
	}
	c.cache.Set(key, p, cache.DefaultExpiration)
	return p, nil
}

// Flush drops every cached prediction.
func (c *CachedPredictor) Flush() { c.cache.Flush() }

// Len reports the number of cached predictions, including expired ones not
// yet cleaned up.
func (c *CachedPredictor) Len() int { return c.cache.ItemCount() }

func cacheKey(bundleID string, rec domain.FlightRecord) (string, bool) {
	if bundleID == "" {
		return "", false
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", false
	}
	sum := sha256.Sum256(data)
	return bundleID + ":" + hex.EncodeToString(sum[:]), true
}
