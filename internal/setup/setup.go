package setup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/itchan-dev/imagehost/internal/codec"
	"github.com/itchan-dev/imagehost/internal/config"
	"github.com/itchan-dev/imagehost/internal/events"
	"github.com/itchan-dev/imagehost/internal/handler"
	"github.com/itchan-dev/imagehost/internal/metadata"
	"github.com/itchan-dev/imagehost/internal/metrics"
	httpmetrics "github.com/itchan-dev/imagehost/internal/middleware/metrics"
	"github.com/itchan-dev/imagehost/internal/middleware/ratelimiter"
	"github.com/itchan-dev/imagehost/internal/service"
	"github.com/itchan-dev/imagehost/internal/storage/fs"
	"github.com/itchan-dev/imagehost/internal/storage/minio"
	"github.com/itchan-dev/imagehost/internal/storage/redis"
)

const metricsNamespace = "imagehost"

// Dependencies struct to hold all initialized dependencies.
type Dependencies struct {
	Config        *config.Config
	Images        *service.Image
	Handler       *handler.Handler
	Registry      *prometheus.Registry
	HTTPMetrics   *httpmetrics.HTTP
	UploadLimiter *ratelimiter.ClientRateLimiter // nil when rate limiting is off

	closers []func()
}

// SetupDependencies initializes all dependencies required for the application.
// Background work started here stops when ctx is cancelled or Close is called.
func SetupDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	ctx, cancel := context.WithCancel(ctx)
	deps := &Dependencies{Config: cfg, closers: []func(){cancel}}

	store, err := deps.newStore(ctx, cfg)
	if err != nil {
		deps.Close()
		return nil, err
	}

	publisher, err := deps.newPublisher(cfg.Public.Events)
	if err != nil {
		deps.Close()
		return nil, err
	}

	extractor, err := metadata.New()
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("metadata extractor: %w", err)
	}

	deps.Registry = prometheus.NewRegistry()
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps.HTTPMetrics = httpmetrics.New(metricsNamespace, deps.Registry)

	upload := cfg.Public.Upload
	deps.Images = service.NewImage(service.ImageConfig{
		MaxFileSize:       upload.MaxFileSize,
		AllowedExtensions: upload.Extensions(),
		Sizes:             cfg.Public.DomainSizes(),
		ResizeWorkers:     upload.ResizeWorkers,
		BatchPolicy:       service.BatchPolicy(upload.BatchPolicy),
	}, service.ImageDependencies{
		Store:     store,
		Extractor: extractor,
		Codec:     codec.New(upload.MaxDecodedBytes),
		Publisher: publisher,
		Metrics:   metrics.NewProm(metricsNamespace, deps.Registry),
	})

	deps.Handler = handler.New(deps.Images, handler.Config{
		MaxRequestSize: cfg.Public.HTTP.MaxRequestSize,
		MaxFileSize:    upload.MaxFileSize,
	})

	if rl := cfg.Public.RateLimit; rl.UploadPerSecond > 0 {
		burst := rl.Burst
		if burst < 1 {
			burst = 1
		}
		deps.UploadLimiter = ratelimiter.New(rl.UploadPerSecond, float64(burst), time.Hour)
		deps.closers = append(deps.closers, deps.UploadLimiter.Stop)
	}

	return deps, nil
}

func (d *Dependencies) newStore(ctx context.Context, cfg *config.Config) (service.ArtifactStore, error) {
	storage := cfg.Public.Storage
	switch storage.Driver {
	case config.DriverMinio:
		store, err := minio.New(ctx, minio.Options{
			Endpoint:  storage.Minio.Endpoint,
			AccessKey: cfg.Private.Minio.AccessKey,
			SecretKey: cfg.Private.Minio.SecretKey,
			Bucket:    storage.Minio.Bucket,
			UseSSL:    storage.Minio.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("using minio storage", "endpoint", storage.Minio.Endpoint, "bucket", storage.Minio.Bucket)
		return store, nil
	case config.DriverRedis:
		store, err := redis.New(storage.Redis.URL, storage.Redis.Prefix)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() {
			if err := store.Close(); err != nil {
				slog.Warn("failed to close redis client", "error", err)
			}
		})
		slog.Info("using redis storage", "prefix", storage.Redis.Prefix)
		return store, nil
	case config.DriverFS, "":
		store, err := fs.New(storage.Root)
		if err != nil {
			return nil, err
		}
		if storage.SweepInterval > 0 {
			fs.NewSweeper(store, storage.TempMaxAge).StartBackgroundSweep(ctx, storage.SweepInterval)
		}
		slog.Info("using filesystem storage", "root", store.Root())
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", storage.Driver)
	}
}

func (d *Dependencies) newPublisher(cfg config.Events) (service.EventPublisher, error) {
	if cfg.NatsURL == "" {
		return events.Noop{}, nil
	}
	publisher, err := events.NewNatsPublisher(cfg.NatsURL, cfg.SubjectPrefix)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, publisher.Close)
	slog.Info("publishing upload events", "subject", events.UploadedSubject(cfg.SubjectPrefix))
	return publisher, nil
}

// Close releases connections and stops background work in reverse order.
func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
