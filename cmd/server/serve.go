package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rpattn/drillops/internal/db"
	"github.com/rpattn/drillops/internal/ingestion"
	"github.com/rpattn/drillops/internal/middleware"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var migrateFirst bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the import HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), migrateFirst)
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", true, "apply pending migrations before serving")
	return cmd
}

func (a *app) serve(ctx context.Context, migrateFirst bool) error {
	if migrateFirst {
		if err := db.RunMigrations(a.cfg.Database, a.log); err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var reg prometheus.Registerer
	if a.cfg.Metrics.Enabled {
		reg = registry
	}
	svc, err := a.connect(ctx, reg)
	if err != nil {
		return err
	}
	defer svc.Close()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   a.cfg.HTTP.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	})

	logging := middleware.LoggingMiddleware(a.log.WithField("component", "http"))
	mux := http.NewServeMux()
	imports := corsHandler.Handler(logging(ingestion.NewHTTPHandler(svc.ingestion, a.log)))
	mux.Handle("/imports", imports)
	mux.Handle("/imports/", imports)
	if a.cfg.Metrics.Enabled {
		mux.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.conn.Pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	server := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.log.WithField("addr", server.Addr).Info("starting import API")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	a.log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Error("server forced to shutdown")
		return err
	}

	a.log.Info("server exited")
	return nil
}
