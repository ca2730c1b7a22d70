package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"github.com/etnz/portfolio-tracker/scheduler"
	"github.com/etnz/portfolio-tracker/server"
)

type serveCmd struct {
	port int
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the portfolio API over HTTP" }
func (*serveCmd) Usage() string {
	return `pcs serve [-port <port>]

  Serves the JSON API and the HTML reports of every portfolio.

  Dashboards are computed ahead of time on $PCS_WARM_SCHEDULE (a cron spec,
  "@every 15m" by default) so that the first request after a quiet period
  is served from the holdings cache.

  The server stops gracefully on SIGINT or SIGTERM.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.port, "port", 0, "Port to listen on. Defaults to $PCS_PORT or 8080.")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(a *app) error {
		port := a.cfg.Port
		if c.port != 0 {
			port = c.port
		}

		srv := server.New(server.Config{
			Port:        port,
			Log:         a.log,
			Engine:      a.engine,
			CORSOrigins: a.cfg.CORSOrigins,
		})

		sched := scheduler.New(a.log)
		if a.cfg.WarmSchedule != "" {
			job := &scheduler.WarmDashboards{Engine: a.engine, Log: a.log, Timeout: time.Minute}
			if err := sched.AddJob(a.cfg.WarmSchedule, job); err != nil {
				return fmt.Errorf("scheduling %s: %w", job.Name(), err)
			}
		}
		sched.Start()
		defer sched.Stop()

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(shutdown)
		})
		return g.Wait()
	})
}
