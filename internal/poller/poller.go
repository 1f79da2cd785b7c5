// Package poller waits for render results to show up in the asset store when the
// dispatcher could not deliver one.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"studio/internal/assets"
	"studio/internal/domain"
	"studio/internal/infra"
)

// QueryLimit is the number of newest asset rows inspected per attempt.
const QueryLimit = 15

// Budget is a fixed-interval attempt budget.
type Budget struct {
	Attempts int
	Interval time.Duration
}

// Default budgets: photo renders settle within seconds, video renders take minutes.
var (
	DefaultPhotoBudget = Budget{Attempts: 40, Interval: 800 * time.Millisecond}
	DefaultVideoBudget = Budget{Attempts: 300, Interval: 2 * time.Second}
)

var errNotReady = errors.New("poller: result not ready")

// Options configures a Poller.
type Options struct {
	Store    domain.AssetStore
	Resolver assets.Resolver
	Photo    Budget
	Video    Budget
	Logger   *infra.Logger
}

// Poller queries the asset store sequentially until a result for the mode appears.
type Poller struct {
	store    domain.AssetStore
	resolver assets.Resolver
	budgets  map[domain.Mode]Budget
	logger   *infra.Logger
}

// New applies the default budgets where opts leaves them empty.
func New(opts Options) *Poller {
	photo, video := opts.Photo, opts.Video
	if photo.Attempts <= 0 || photo.Interval <= 0 {
		photo = DefaultPhotoBudget
	}
	if video.Attempts <= 0 || video.Interval <= 0 {
		video = DefaultVideoBudget
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Poller{
		store:    opts.Store,
		resolver: opts.Resolver,
		budgets:  map[domain.Mode]Budget{domain.ModePhoto: photo, domain.ModeVideo: video},
		logger:   logger,
	}
}

// BudgetFor returns the attempt budget used for mode.
func (p *Poller) BudgetFor(mode domain.Mode) Budget {
	if b, ok := p.budgets[mode]; ok {
		return b
	}
	return DefaultPhotoBudget
}

// PollUntilReady queries the store until the latest assets hold a result for mode created
// at or after since, the start of the job being waited on. When the budget runs out it
// performs one final query and returns whatever it finds, which may not be ready; callers
// treat that as a timeout. A failed query stops polling.
func (p *Poller) PollUntilReady(ctx context.Context, scope domain.Scope, mode domain.Mode, since time.Time) (*assets.Latest, error) {
	budget := p.BudgetFor(mode)
	var (
		latest  *assets.Latest
		attempt int
	)
	op := func() error {
		attempt++
		found, err := p.query(ctx, scope, mode, since)
		if err != nil {
			return backoff.Permanent(err)
		}
		latest = found
		if latest.Ready(mode) {
			return nil
		}
		return errNotReady
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(budget.Interval), uint64(budget.Attempts-1)),
		ctx,
	)
	err := backoff.Retry(op, policy)
	switch {
	case err == nil:
		p.logger.Debug().
			Str("project_id", scope.ProjectID).
			Str("mode", string(mode)).
			Int("attempt", attempt).
			Msg("poller: result found")
		return latest, nil
	case !errors.Is(err, errNotReady):
		return nil, err
	}

	p.logger.Info().
		Str("project_id", scope.ProjectID).
		Str("mode", string(mode)).
		Int("attempts", attempt).
		Msg("poller: budget exhausted, running final query")
	return p.query(ctx, scope, mode, since)
}

func (p *Poller) query(ctx context.Context, scope domain.Scope, mode domain.Mode, since time.Time) (*assets.Latest, error) {
	rows, err := p.store.LatestAssets(ctx, scope, QueryLimit)
	if err != nil {
		return nil, fmt.Errorf("poller: latest assets: %w", err)
	}
	return assets.SelectSince(rows, p.resolver, mode, since), nil
}
