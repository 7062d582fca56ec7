// Package bootstrap provides dependency initialization for the memory-images service.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/memory-images/internal/config"
	"github.com/maauso/memory-images/internal/engine"
	"github.com/maauso/memory-images/internal/job"
	"github.com/maauso/memory-images/internal/metrics"
	"github.com/maauso/memory-images/internal/notify"
	"github.com/maauso/memory-images/internal/pipeline"
	"github.com/maauso/memory-images/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	RenderService *job.RenderService
	Hub           *notify.Hub
	Metrics       *metrics.Metrics
	Loader        *engine.Loader
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize storage
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	loader := NewLoader(cfg, logger)
	assembler := NewAssembler(cfg, loader, logger, pipeline.WithObserver(m))
	hub := notify.NewHub(logger)

	svc := job.NewRenderService(
		job.NewMemoryRepository(),
		assembler,
		store,
		job.WithNotifier(hub),
		job.WithMetrics(m),
		job.WithServiceLogger(logger),
	)

	return &Dependencies{
		RenderService: svc,
		Hub:           hub,
		Metrics:       m,
		Loader:        loader,
	}, nil
}

// NewLoader creates the engine loader. The engine itself starts on first use.
func NewLoader(cfg *config.Config, logger *slog.Logger) *engine.Loader {
	return engine.NewLoader(engine.FFmpegFactory(engine.FFmpegConfig{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		WorkDir:     cfg.TempDir,
		Logger:      logger,
	}), logger)
}

// NewAssembler creates the assembly pipeline configured from cfg.
func NewAssembler(cfg *config.Config, loader pipeline.Loader, logger *slog.Logger, extra ...pipeline.Option) *pipeline.Assembler {
	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithFilterMode(cfg.FilterMode()),
		pipeline.WithFrameSize(cfg.VideoWidth, cfg.VideoHeight),
		pipeline.WithFPS(cfg.VideoFPS),
		pipeline.WithLockFile(cfg.LockFile()),
	}
	if cfg.NormalizeImages {
		opts = append(opts, pipeline.WithImageNormalization(cfg.JPEGQuality))
	}
	return pipeline.NewAssembler(loader, append(opts, extra...)...)
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			KeyPrefix:       cfg.S3KeyPrefix,
		}
		s3Store, err := storage.NewS3Storage(cfg.VideoDir(), s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("output_dir", cfg.VideoDir()),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.VideoDir())
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("output_dir", cfg.VideoDir()),
	)
	return localStore, nil
}
