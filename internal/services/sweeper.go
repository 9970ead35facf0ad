// Background maintenance. The sweeper periodically evicts stale rate
// windows and expired cache entries, and tears down idle serializer lanes.
// Eviction elsewhere is lazy (on access); the sweeper exists so entries for
// authors who went quiet still get reclaimed.
package services

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-bot-gateway/internal/cache"
	"github.com/tbourn/go-bot-gateway/internal/dispatch"
	"github.com/tbourn/go-bot-gateway/internal/throttle"
)

// Sweeper drives periodic cleanup of the pipeline's in-memory stores.
type Sweeper struct {
	Limiter    *throttle.Limiter
	Cache      *cache.ReplyCache
	Serializer *dispatch.Serializer

	// StoreInterval spaces rate-window and cache sweeps; defaults to the
	// rate window duration upstream. LaneInterval spaces serializer lane
	// sweeps and doubles as the lane idle threshold.
	StoreInterval time.Duration
	LaneInterval  time.Duration

	Log zerolog.Logger
}

// Run blocks, sweeping on the configured intervals until ctx is cancelled.
// A panic in one sweep iteration is logged and does not stop the loop.
func (s *Sweeper) Run(ctx context.Context) {
	stores := time.NewTicker(s.StoreInterval)
	lanes := time.NewTicker(s.LaneInterval)
	defer stores.Stop()
	defer lanes.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stores.C:
			s.safe(func() { s.sweepStores(time.Now()) })
		case <-lanes.C:
			s.safe(func() { s.sweepLanes(time.Now()) })
		}
	}
}

// sweepStores evicts stale rate windows and expired cache entries.
func (s *Sweeper) sweepStores(now time.Time) {
	windows := s.Limiter.Sweep(now)
	entries := s.Cache.Sweep(now)
	if windows > 0 {
		sweeperEvictions.WithLabelValues("rate_windows").Add(float64(windows))
	}
	if entries > 0 {
		sweeperEvictions.WithLabelValues("cache_entries").Add(float64(entries))
	}
	if windows > 0 || entries > 0 {
		s.Log.Debug().
			Int("rate_windows", windows).
			Int("cache_entries", entries).
			Msg("swept stores")
	}
}

// sweepLanes removes serializer lanes idle for at least one lane interval.
func (s *Sweeper) sweepLanes(now time.Time) {
	removed := s.Serializer.Sweep(now.Add(-s.LaneInterval))
	if removed > 0 {
		sweeperEvictions.WithLabelValues("serializer_lanes").Add(float64(removed))
		s.Log.Debug().Int("lanes", removed).Msg("swept idle lanes")
	}
}

// safe runs fn, containing panics so the sweep loop keeps running.
func (s *Sweeper) safe(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.Log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("sweep iteration panicked")
		}
	}()
	fn()
}
