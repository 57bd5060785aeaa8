package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/flipbook/internal/config"
	"github.com/local/flipbook/internal/fetch"
	logpkg "github.com/local/flipbook/internal/logger"
	"github.com/local/flipbook/internal/metrics"
	"github.com/local/flipbook/internal/sched"
	"github.com/local/flipbook/internal/source"
	web "github.com/local/flipbook/internal/web"
)

func main() {
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	// Init logging
	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	metrics.Init()

	if cfg.Document.Ref == "" {
		log.Fatal().Msg("DOC_REF is required")
	}

	// Resolve the document reference to a local file
	docPath, cleanup, err := fetch.Resolve(context.Background(), cfg.Document.Ref, cfg.Document.Password)
	if err != nil {
		log.Fatal().Err(err).Str("ref", cfg.Document.Ref).Msg("failed to fetch document")
	}
	defer cleanup()

	// Document source
	src, err := source.Open(docPath, source.Config{
		DPI:            cfg.Document.DPI,
		Quality:        cfg.Document.Quality,
		ColorMode:      source.ColorMode(cfg.Document.ColorMode),
		Split:          cfg.Document.SplitPages,
		InlineMaxBytes: cfg.Document.InlineMaxBytes,
	})
	if err != nil {
		log.Fatal().Err(err).Str("ref", cfg.Document.Ref).Msg("failed to open document")
	}
	defer src.Close()

	// Cache & preload scheduler
	scheduler := sched.New(src, sched.Config{
		Window:          cfg.Scheduler.Window,
		Ahead:           cfg.Scheduler.Ahead,
		BatchSize:       cfg.Scheduler.BatchSize,
		BackgroundDelay: cfg.Scheduler.BackgroundDelay,
		MaxRenders:      cfg.Scheduler.MaxRenders,
	})
	defer scheduler.Dispose()

	// Viewer
	viewer := web.New(src, scheduler)
	mux := http.NewServeMux()
	viewer.RegisterRoutes(mux)
	mux.Handle("/metrics", metrics.Handler())

	// Warm the opening spread so the first visit has something to show
	if err := scheduler.OnNavigate(context.Background(), 0); err != nil {
		log.Error().Err(err).Msg("initial render pass failed")
	}

	srv := &http.Server{Addr: ":" + cfg.Web.Port, Handler: mux}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.Web.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("shutdown complete")
}
