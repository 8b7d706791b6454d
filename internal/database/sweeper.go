// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package database

import (
	"context"
	"time"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/logging"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/metrics"
)

// DefaultSweepInterval is how often expired single-use rows are purged.
const DefaultSweepInterval = 10 * time.Minute

// Sweeper periodically deletes expired auth codes, OAuth states, reset
// tokens, and refresh tokens. Expiry checks on the hot paths do not
// depend on it; it only bounds table growth.
type Sweeper struct {
	db       *DB
	interval time.Duration
}

// NewSweeper returns a sweeper over db. A non-positive interval selects
// DefaultSweepInterval.
func NewSweeper(db *DB, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{db: db, interval: interval}
}

// Run sweeps once immediately and then on every tick until ctx is
// canceled. Intended to be launched as a goroutine from main.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	now := time.Now().Unix()
	log := logging.WithComponent("sweeper")

	type job struct {
		name string
		fn   func(context.Context, int64) (int64, error)
	}
	jobs := []job{
		{"auth_codes", s.db.SweepAuthCodes},
		{"oauth_states", s.db.SweepOAuthStates},
		{"password_reset_tokens", s.db.SweepPasswordResetTokens},
		{"refresh_tokens", s.db.SweepRefreshTokens},
	}

	var total int64
	for _, j := range jobs {
		n, err := j.fn(ctx, now)
		if err != nil {
			log.Error().Err(err).Str("table", j.name).Msg("Sweep failed")
			continue
		}
		if n > 0 {
			metrics.SweptRows.WithLabelValues(j.name).Add(float64(n))
		}
		total += n
	}
	if total > 0 {
		log.Debug().Int64("rows", total).Msg("Swept expired rows")
	}
}
