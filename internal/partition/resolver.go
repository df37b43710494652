// Package partition resolves the deterministic "latest available data" anchor
// date every query is grounded on. The warehouse is fed by a daily batch and
// lags the wall clock, so relative time phrases must never resolve against
// real time.
package partition

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const (
	// Layout of the partition key, e.g. 20260209.
	KeyLayout = "20060102"

	cacheKey = "latest_ds"

	// Anchor values live for an hour before the warehouse is probed again.
	cacheTTL = time.Hour
)

// Prober asks the warehouse for the newest partition key of the anchor table.
type Prober interface {
	LatestPartition(ctx context.Context) (string, error)
}

// Resolver caches the anchor partition and derives the date context from it.
type Resolver struct {
	prober Prober
	cache  *gocache.Cache
	clock  clockwork.Clock
	logger *logrus.Logger
}

func NewResolver(prober Prober, logger *logrus.Logger) *Resolver {
	return &Resolver{
		prober: prober,
		cache:  gocache.New(cacheTTL, 10*time.Minute),
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}
}

// WithClock swaps the clock; used by tests and anywhere fallback dates must
// be deterministic.
func (r *Resolver) WithClock(clock clockwork.Clock) *Resolver {
	r.clock = clock
	return r
}

// Latest returns the latest available partition key 'YYYYMMDD'.
// Strategy: cached value, then warehouse probe, then yesterday from the
// clock. The fallback is never cached so the next call retries the probe.
func (r *Resolver) Latest(ctx context.Context) string {
	if v, ok := r.cache.Get(cacheKey); ok {
		return v.(string)
	}

	ds, err := r.prober.LatestPartition(ctx)
	if err == nil && ds != "" {
		if _, perr := time.Parse(KeyLayout, ds); perr == nil {
			r.cache.Set(cacheKey, ds, cacheTTL)
			r.logger.WithField("latest_ds", ds).Info("refreshed anchor partition")
			return ds
		}
		r.logger.WithField("latest_ds", ds).Warn("anchor probe returned malformed partition key")
	} else if err != nil {
		r.logger.WithError(err).Warn("anchor partition probe failed, falling back to yesterday")
	}

	return r.clock.Now().AddDate(0, 0, -1).Format(KeyLayout)
}

// Invalidate drops the cached anchor so the next Latest call probes again.
func (r *Resolver) Invalidate() {
	r.cache.Delete(cacheKey)
}
