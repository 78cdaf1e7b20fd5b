// Package worker runs background jobs alongside the HTTP server.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RulesSource refreshes the cached password rules.
type RulesSource interface {
	RefreshRules(ctx context.Context) (int, error)
}

// RulesRefresher keeps the cached password rules warm so page requests do
// not wait on the accounts API after the cache entry expires.
type RulesRefresher struct {
	source   RulesSource
	interval time.Duration
	timeout  time.Duration
}

func NewRulesRefresher(source RulesSource, interval, timeout time.Duration) *RulesRefresher {
	return &RulesRefresher{
		source:   source,
		interval: interval,
		timeout:  timeout,
	}
}

// Start refreshes once, then on every tick until ctx is done. It returns
// immediately when the interval is not positive.
func (w *RulesRefresher) Start(ctx context.Context) {
	if w.interval <= 0 {
		return
	}

	w.refresh(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *RulesRefresher) refresh(ctx context.Context) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	n, err := w.source.RefreshRules(ctx)
	if err != nil {
		// Log error but continue
		log.Warn().Err(err).Msg("failed to refresh password rules")
		return
	}
	log.Debug().Int("rules", n).Msg("refreshed password rules")
}
