package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/donghua/internal/agents"
	"github.com/snappy-loop/donghua/internal/auth"
	"github.com/snappy-loop/donghua/internal/config"
	"github.com/snappy-loop/donghua/internal/handlers"
	"github.com/snappy-loop/donghua/internal/llm"
	"github.com/snappy-loop/donghua/internal/session"
	"github.com/snappy-loop/donghua/internal/storage"
	"golang.org/x/sync/errgroup"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().Msg("Starting Donghua character studio")

	if cfg.GeminiAPIKey == "" {
		log.Warn().Msg("GEMINI_API_KEY is not set; generation requests will fail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Client calls outlive the request that started them, so they hang off
	// their own context that is cancelled only after the drain deadline.
	callCtx, cancelCalls := context.WithCancel(context.Background())
	defer cancelCalls()

	client := llm.NewClient(ctx, llm.Config{
		APIKey:            cfg.GeminiAPIKey,
		Endpoint:          cfg.GeminiAPIEndpoint,
		TextModel:         cfg.GeminiModelText,
		ImageModel:        cfg.GeminiModelImage,
		TextBackend:       cfg.GeminiTextBackend,
		Temperature:       &cfg.PromptTemperature,
		AspectRatio:       cfg.ImageAspectRatio,
		ImageSize:         cfg.ImageSize,
		RequestsPerMinute: cfg.GeminiRPM,
	})
	agent := agents.NewCharacterAgent(client)
	store := session.NewStore(callCtx, agent, cfg.SessionTTL, cfg.SessionCleanupInterval, cfg.RequestTimeout)

	var previews handlers.PreviewStore
	if cfg.S3Enabled() {
		storageClient, err := storage.NewClient(ctx, storage.Options{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize storage client")
		}
		previews = storageClient
	} else {
		log.Info().Msg("S3 not configured; preview export disabled")
	}

	authService := auth.NewService(cfg.AccessTokenHash)
	if !authService.Enabled() {
		log.Warn().Msg("ACCESS_TOKEN_HASH is not set; /api and /v1 are open")
	}

	h := handlers.NewHandler(store, agent, previews, cfg.S3URLExpiry, authService.Enabled())
	r := handlers.NewRouter(h, authService.Middleware)

	// No WriteTimeout: WebSocket connections and synchronous image calls run long.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down API...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}

		drained := make(chan struct{})
		go func() {
			store.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-shutdownCtx.Done():
			log.Warn().Msg("Abandoning in-flight generation calls")
			cancelCalls()
			<-drained
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("API exited")
}
