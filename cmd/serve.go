package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/camden-git/entomobackend/annotation"
	"github.com/camden-git/entomobackend/client"
	"github.com/camden-git/entomobackend/config"
	"github.com/camden-git/entomobackend/database"
	"github.com/camden-git/entomobackend/handlers"
	"github.com/camden-git/entomobackend/metrics"
	"github.com/camden-git/entomobackend/realtime"
	"github.com/camden-git/entomobackend/repository"
	"github.com/camden-git/entomobackend/services"
)

func serveCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	cmd.Flags().String("port", "", "HTTP listen port")
	cmd.Flags().String("remote-url", "", "Save sessions to this server instead of the local database")
	if err := v.BindPFlag("port", cmd.Flags().Lookup("port")); err != nil {
		panic(err)
	}
	if err := v.BindPFlag("remote_url", cmd.Flags().Lookup("remote-url")); err != nil {
		panic(err)
	}
	return cmd
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	db, err := database.InitGormDB(cfg.DatabasePath, log)
	if err != nil {
		return err
	}
	defer database.Close(db)
	if err := database.AutoMigrateModels(db); err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	saveMetrics, err := metrics.NewSaveMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	hub := realtime.NewHub(log)
	hub.AllowOrigins(cfg.AllowedOrigins)
	go hub.Run()
	defer hub.Stop()

	uploads := repository.NewUploadRepository(db)
	detections := repository.NewDetectionRepository(db, log)
	local := services.NewLocalBackend(uploads, detections)

	// sessions edit against the local database unless a remote server is configured
	var (
		seeds     services.SeedSource  = local
		persister annotation.Persister = local
	)
	if cfg.RemoteURL != "" {
		remote, err := client.NewHTTPBackend(cfg.RemoteURL, cfg.SaveTimeout, log)
		if err != nil {
			return err
		}
		seeds, persister = remote, remote
		log.Info("sessions use remote server", "remote_url", cfg.RemoteURL)
	}

	sessions := services.NewSessionService(seeds, persister, services.SessionOptions{
		TTL:         cfg.SessionTTL,
		Cleanup:     cfg.SessionCleanup,
		MaxHistory:  cfg.MaxHistory,
		SaveTimeout: cfg.SaveTimeout,
		Observer:    saveMetrics,
		Publisher:   hub,
		Logger:      log,
	})

	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handlers.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(corsOptions).Handler)

	handlers.Mount(r,
		&handlers.UploadHandler{Uploads: uploads, Detections: detections, Backend: local, SQL: sqlDB, Log: log},
		&handlers.SessionHandler{Sessions: sessions, Log: log},
		hub.ServeWS)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.SaveTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", server.Addr, "database", cfg.DatabasePath)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
