package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	portfolio "github.com/etnz/portfolio-tracker"
)

// WarmDashboards computes today's dashboard of every portfolio, which fills
// the engine's holdings cache for today and yesterday.
type WarmDashboards struct {
	Engine  *portfolio.Engine
	Log     zerolog.Logger
	Timeout time.Duration // zero means no timeout
}

func (j *WarmDashboards) Name() string { return "warm_dashboards" }

func (j *WarmDashboards) Run() error {
	ctx := context.Background()
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	list, err := j.Engine.Portfolios(ctx)
	if err != nil {
		return fmt.Errorf("listing portfolios: %w", err)
	}
	var errs []error
	for _, p := range list {
		stats, err := j.Engine.DashboardStats(ctx, p.ID, portfolio.Date{})
		if err != nil {
			errs = append(errs, fmt.Errorf("dashboard of %s: %w", p.ID, err))
			continue
		}
		j.Log.Debug().
			Str("portfolio", p.ID).
			Int64("version", stats.Version).
			Str("net_worth", stats.TotalNetWorth.Decimal().StringFixed(2)).
			Msg("dashboard warmed")
	}
	return errors.Join(errs...)
}
