package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"actionchat/internal/config"
	"actionchat/internal/db"
	"actionchat/internal/httpapi"
	"actionchat/internal/specstore"
)

var version = "dev"

var cli struct {
	Debug   bool             `help:"Enable debug logging."`
	Addr    string           `help:"Override listen address." placeholder:"HOST:PORT"`
	Version kong.VersionFlag `help:"Print version and exit."`
}

func main() {
	kong.Parse(&cli, kong.Vars{"version": version})

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "actionchat-api").Logger()
	if cli.Debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}
	if cli.Addr != "" {
		cfg.HTTPAddr = cli.Addr
	}

	pool, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("db")
	}
	defer pool.Close()

	deps := httpapi.Deps{
		DB:                 pool,
		Log:                logger,
		SessionSecret:      cfg.SessionSecret,
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		UploadDuration:     cfg.OSSSTSDurationSeconds,
	}

	// Spec document storage is optional; the source upload endpoints report
	// it as unconfigured when the provider is unset.
	if cfg.OSSProvider != "" {
		specCfg := specstore.Config{
			Provider:           cfg.OSSProvider,
			Endpoint:           cfg.OSSEndpoint,
			Region:             cfg.OSSRegion,
			Bucket:             cfg.OSSBucket,
			BasePrefix:         cfg.OSSBasePrefix,
			AccessKeyID:        cfg.OSSAccessKeyID,
			AccessKeySecret:    cfg.OSSAccessKeySecret,
			STSRoleARN:         cfg.OSSSTSRoleARN,
			STSDurationSeconds: cfg.OSSSTSDurationSeconds,
			LocalDir:           cfg.OSSLocalDir,
		}
		deps.Specs, err = specstore.New(specCfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("spec storage")
		}
		deps.UploadIssuer, err = specstore.NewCredentialIssuer(specCfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("spec storage credentials")
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
