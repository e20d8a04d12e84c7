package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/john/chatoverlay/internal/config"
	"github.com/john/chatoverlay/internal/kick"
	"github.com/john/chatoverlay/internal/logging"
	"github.com/john/chatoverlay/internal/matrix"
	"github.com/john/chatoverlay/internal/message"
	"github.com/john/chatoverlay/internal/overlay"
	"github.com/john/chatoverlay/internal/render"
	"github.com/john/chatoverlay/internal/s3client"
	"github.com/john/chatoverlay/internal/server"
	"github.com/john/chatoverlay/internal/source"
	"github.com/john/chatoverlay/internal/twitch"
	"github.com/john/chatoverlay/internal/uploader"
	"github.com/john/chatoverlay/internal/yarrdb"
)

// provider is a chat connector feeding the collector
type provider interface {
	Start(ctx context.Context, messageChan chan<- message.ChatMessage) error
}

func main() {
	logging.Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_CONSOLE") != "")

	// Get config path from environment variable or use default
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Console)
	log.Info().Str("path", configPath).Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var s3Client *s3.Client
	if cfg.NeedsS3() {
		if cfg.S3.RoleARN != "" {
			log.Info().Str("role", cfg.S3.RoleARN).Msg("Using OIDC authentication")
		} else {
			log.Warn().Msg("Using static AWS credentials (deprecated). Migrate to OIDC for better security.")
		}
		s3Client, err = s3client.New(ctx, cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create S3 client")
		}
	}

	var wg sync.WaitGroup
	var srv *server.Server

	if cfg.Overlay.Enabled {
		srv = startOverlay(ctx, &wg, cfg, s3Client)
	}
	if cfg.Database.Enabled {
		startCollector(ctx, &wg, cfg, s3Client)
	}

	log.Info().Msg("All components started successfully")

	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received, initiating graceful shutdown...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if srv != nil {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Error shutting down HTTP server")
			}
		}

		// Cancel main context to stop other components
		cancel()

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			log.Info().Msg("All components stopped gracefully")
		case <-shutdownCtx.Done():
			log.Warn().Msg("Shutdown timeout exceeded, forcing exit")
		}

		os.Exit(0)
	}()

	wg.Wait()
	log.Info().Msg("Chat overlay stopped")
}

// overlaySources builds the two polled resources. Only the log is
// cache-busted, the snapshot changes on checkpoints only.
func overlaySources(o config.OverlayConfig, deps source.Deps) (source.Source, source.Source, error) {
	snapshot, err := source.New(o.Snapshot, false, deps)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: %w", err)
	}
	logSrc, err := source.New(o.Log, true, deps)
	if err != nil {
		return nil, nil, fmt.Errorf("log: %w", err)
	}
	return snapshot, logSrc, nil
}

func startOverlay(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, s3Client *s3.Client) *server.Server {
	o := cfg.Overlay

	deps := source.Deps{HTTPClient: &http.Client{}}
	if s3Client != nil {
		deps.S3 = s3Client
	}
	snapshot, logSrc, err := overlaySources(o, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid overlay resource location")
	}

	slot := server.NewContentSlot()
	renderer := render.New(render.Options{
		MaxMessageAge: float64(o.MaxMessageAge),
		ChatSpeed:     o.ChatSpeed,
		MaxSpacers:    o.MaxSpacers,
		ProviderTags:  o.ProviderTags,
	})

	var opts []overlay.Option
	if fs, ok := logSrc.(*source.FileSource); ok && o.Watch {
		changes := make(chan struct{}, 1)
		opts = append(opts, overlay.WithChanges(changes))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := source.Watch(ctx, fs.Path(), changes); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("File watch stopped, falling back to polling only")
			}
		}()
	}

	engine := overlay.New(overlay.Config{
		MaxMessages:    o.MaxMessages,
		PollInterval:   o.PollInterval(),
		RenderInterval: o.RenderInterval(),
		FetchTimeout:   o.FetchTimeout(),
	}, snapshot, logSrc, renderer, slot, opts...)

	srv := server.New(o.Listen, slot, o.ContainerID)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Overlay engine error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", o.Listen).Msg("HTTP server listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return srv
}

func startCollector(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, s3Client *s3.Client) {
	d := cfg.Database
	messageChan := make(chan message.ChatMessage, d.BufferSize)

	providers := map[string]provider{}
	if len(cfg.Twitch.Channels) > 0 {
		log.Info().Strs("channels", cfg.Twitch.Channels).Msg("Monitoring Twitch channels")
		providers[twitch.ProviderName] = twitch.New(cfg.Twitch.Username, cfg.Twitch.OAuth, cfg.Twitch.Channels, cfg.Twitch.BadgeImages)
	}
	if cfg.Kick.Enabled {
		log.Info().Int("channels", len(cfg.Kick.Channels)).Msg("Monitoring Kick channels")
		providers[kick.ProviderName] = kick.New(cfg.Kick.Channels, cfg.Kick.BadgeImages)
	}
	if rooms := cfg.Matrix.Rooms(); len(rooms) > 0 {
		log.Info().Strs("rooms", rooms).Msg("Monitoring Matrix rooms")
		providers[matrix.ProviderName] = matrix.New(cfg.Matrix)
	}

	for name, p := range providers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Start(ctx, messageChan); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("provider", name).Msg("Connector error")
			}
		}()
	}

	var fileChan chan string
	var recOpts []yarrdb.RecorderOption
	if cfg.Uploader.Enabled && s3Client != nil {
		fileChan = make(chan string, 100)
		up := uploader.New(s3Client, cfg.S3.Bucket, cfg.S3.Prefix, cfg.Uploader.MaxRetries)
		recOpts = append(recOpts, yarrdb.WithFinalUpload(up))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := up.Start(ctx, fileChan); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Uploader error")
			}
		}()
	}

	db := yarrdb.New(d.MaxSize, d.LogPath, d.CheckpointPath)
	rec := yarrdb.NewRecorder(db, fileChan, recOpts...)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := rec.Start(ctx, messageChan); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Recorder error")
		}
	}()
}
