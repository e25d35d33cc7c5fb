package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// ExpiredTokenDeleter removes token rows that can no longer authenticate anyone.
type ExpiredTokenDeleter interface {
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// TokenSweeper periodically purges expired tokens. The session verifier rejects
// expired tokens on its own; the sweep only keeps the table small.
type TokenSweeper struct {
	store ExpiredTokenDeleter
	cron  *cron.Cron
	now   func() time.Time
}

// NewTokenSweeper creates a sweeper running on the given cron spec
// (standard five-field syntax or descriptors such as "@every 15m").
func NewTokenSweeper(store ExpiredTokenDeleter, spec string) (*TokenSweeper, error) {
	ts := &TokenSweeper{
		store: store,
		cron:  cron.New(),
		now:   time.Now,
	}
	if _, err := ts.cron.AddFunc(spec, func() { ts.Sweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid token sweep schedule %q: %w", spec, err)
	}
	return ts, nil
}

// Run starts the cron scheduler in its own goroutine.
func (ts *TokenSweeper) Run() {
	log.Info().Msg("Starting expired token sweeper...")
	ts.cron.Start()
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (ts *TokenSweeper) Stop() {
	<-ts.cron.Stop().Done()
	log.Info().Msg("Stopped expired token sweeper.")
}

// Sweep deletes every token that has expired as of now.
func (ts *TokenSweeper) Sweep(ctx context.Context) (int64, error) {
	removed, err := ts.store.DeleteExpiredTokens(ctx, ts.now())
	if err != nil {
		log.Error().Err(err).Msg("TokenSweeper: Failed to delete expired tokens")
		return 0, err
	}
	if removed > 0 {
		log.Info().Int64("removed", removed).Msg("TokenSweeper: Deleted expired tokens")
	}
	return removed, nil
}
