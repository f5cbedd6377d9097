package main

import (
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run the HTTP admin API, metrics endpoint and (optionally) the join event consumer",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3900",
			EnvVars: []string{"VIGIL_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3901",
			EnvVars: []string{"VIGIL_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "admin-token",
			Usage:   "bearer token required on /v1 routes",
			EnvVars: []string{"VIGIL_ADMIN_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "join-events",
			Usage:   "JSON lines file of join events to screen, or - for stdin",
			EnvVars: []string{"VIGIL_JOIN_EVENTS"},
		},
		&cli.DurationFlag{
			Name:    "reload-interval",
			Usage:   "how often the corpus and server policies are re-read from their stores (0 to disable)",
			Value:   5 * time.Minute,
			EnvVars: []string{"VIGIL_RELOAD_INTERVAL"},
		},
	},
	Action: runServe,
}

func runServe(cctx *cli.Context) error {
	logger := configLogger(cctx)

	ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTEL, err := configOTEL(ctx, "vigil", logger)
	if err != nil {
		return err
	}
	defer shutdownOTEL()

	st, err := setupStack(cctx, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if st.Engine.Corpus().Len() == 0 {
		logger.Warn("ban corpus is empty, no joins will match")
	}

	adminToken := cctx.String("admin-token")
	if adminToken == "" {
		logger.Warn("no admin token configured, /v1 API is unauthenticated")
	}
	srv := NewServer(st, ServerConfig{
		Bind:       cctx.String("bind"),
		AdminToken: adminToken,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.RunAPI)
	g.Go(func() error {
		<-gctx.Done()
		return srv.Shutdown()
	})

	if listen := cctx.String("metrics-listen"); listen != "" {
		g.Go(func() error {
			logger.Info("starting metrics endpoint", "bind", listen)
			return RunMetrics(gctx, listen)
		})
	}

	if interval := cctx.Duration("reload-interval"); interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					st.Engine.ReloadCorpus(gctx)
					// picks up policy changes made from the command line
					if err := st.Policies.Load(gctx); err != nil {
						logger.Warn("failed to reload server policies", "err", err)
					}
				}
			}
		})
	}

	// the consumer is not part of the group: a blocked stdin read must not hold up shutdown
	if path := cctx.String("join-events"); path != "" {
		r, err := openJoinEvents(path)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		go func() {
			defer r.Close()
			if err := RunJoinConsumer(gctx, r, st.Engine, logger); err != nil {
				logger.Error("join consumer failed", "err", err)
			}
		}()
	}

	err = g.Wait()
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("graceful shutdown complete")
	return nil
}
