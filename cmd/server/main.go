package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Brownie44l1/roadsign-api/internal/config"
	"github.com/Brownie44l1/roadsign-api/internal/handlers"
	"github.com/Brownie44l1/roadsign-api/internal/metrics"
	"github.com/Brownie44l1/roadsign-api/internal/model"
)

func main() {
	c, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c)

	labels, err := model.LoadLabels(c.LabelsPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", c.LabelsPath).Msg("failed to load labels")
	}

	metadata, err := model.LoadMetadata(c.MetadataPath, labels.Len())
	if err != nil {
		log.Fatal().Err(err).Str("path", c.MetadataPath).Msg("failed to load model metadata")
	}
	if err := metadata.Validate(labels.Len()); err != nil {
		log.Fatal().Err(err).Msg("model metadata does not match labels")
	}
	if _, err := os.Stat(c.ModelPath); err != nil {
		log.Fatal().Err(err).Str("path", c.ModelPath).Msg("model file unavailable")
	}

	log.Info().Str("path", c.ModelPath).Str("device", c.Device).Msg("loading model")

	modelServer, err := model.NewServer(model.ServerOptions{
		ModelPath:   c.ModelPath,
		LibraryPath: c.OnnxRuntimeLib,
		Device:      c.Device,
		Metadata:    metadata,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize model server")
	}
	defer modelServer.Close()

	log.Info().
		Str("device", modelServer.Device).
		Int("classes", labels.Len()).
		Strs("labels", labels.Labels()).
		Msg("model loaded")

	m := metrics.New()
	m.LabelTableEntries.Set(float64(labels.Len()))

	pipeline := model.NewPipeline(labels, model.NewPreprocessor(metadata), modelServer)
	handler := handlers.NewHandler(pipeline, m, handlers.Options{
		FrontendPath:   c.FrontendPath,
		StaticDir:      c.StaticDir,
		MaxUploadBytes: c.MaxUploadBytes,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	servers := []*http.Server{newServer(c.Port, handler.Routes())}
	if c.MetricsPort > 0 {
		servers = append(servers, newServer(c.MetricsPort, metricsMux(m)))
	}

	errs := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			log.Info().Str("addr", srv.Addr).Msg("server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("%s: %w", srv.Addr, err)
			}
		}(srv)
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errs:
		log.Error().Err(err).Msg("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("addr", srv.Addr).Msg("failed to shutdown server")
		}
	}
}

func setupLogging(c config.Settings) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func newServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", m.Handler())
	return mux
}
