package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/semanticlink/todo-hypermedia-sub002/pkg/observability"
)

func (a *App) newServeCommand() *Command {
	cmd := a.newCommand("serve", "Run the rights administration API", nil)
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return a.runServe()
	}
	return cmd
}

// runServe serves the API and the health port until SIGINT or SIGTERM, or
// until either listener fails.
func (a *App) runServe() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, a.logOutput)

	sigCtx, stop := signal.NotifyContext(a.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	rt, err := openRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	abort := func(err error) error {
		if rt.tracing != nil {
			_ = rt.tracing.Shutdown(context.Background())
		}
		return errors.Join(err, rt.Close())
	}

	if rt.tracing, err = observability.InitTracing(ctx, cfg.Observability.Tracing, Version, logger); err != nil {
		return abort(err)
	}
	if err := rt.migrate(ctx); err != nil {
		return abort(err)
	}
	if err := rt.bootstrap(ctx); err != nil {
		return abort(err)
	}

	handler, err := rt.apiHandler(ctx)
	if err != nil {
		return abort(err)
	}
	if err := rt.watchPolicies(ctx); err != nil {
		return abort(err)
	}
	jobs, err := rt.scheduleJobs(ctx)
	if err != nil {
		return abort(err)
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     rt.healthHandler(),
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc(func(shutdownCtx context.Context) error {
		select {
		case <-jobs.Stop().Done():
		case <-shutdownCtx.Done():
		}
		var errs []error
		if rt.tracing != nil {
			errs = append(errs, rt.tracing.Shutdown(shutdownCtx))
		}
		return errors.Join(append(errs, rt.Close())...)
	})
	jobs.Start()

	serveErrs := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, healthServer} {
		go func(srv *http.Server) {
			defer observability.RecoverPanic(logger, "http server")

			logger.WithField("addr", srv.Addr).Info("Listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).WithField("addr", srv.Addr).Error("Server failed")
				serveErrs <- err
				cancel()
			}
		}(srv)
	}

	shutdownErr := shutdown.WaitForShutdown(ctx)

	select {
	case err := <-serveErrs:
		return errors.Join(err, shutdownErr)
	default:
		return shutdownErr
	}
}
