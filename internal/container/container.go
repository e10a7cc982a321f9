package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/anime-shed/defect-inspector-go/internal/config"
	"github.com/anime-shed/defect-inspector-go/internal/detector"
	"github.com/anime-shed/defect-inspector-go/internal/flow"
	"github.com/anime-shed/defect-inspector-go/internal/ingest"
	"github.com/anime-shed/defect-inspector-go/internal/logger"
	"github.com/anime-shed/defect-inspector-go/internal/observer"
	"github.com/anime-shed/defect-inspector-go/internal/repository"
	"github.com/anime-shed/defect-inspector-go/internal/repository/sqlite"
	"github.com/anime-shed/defect-inspector-go/internal/session"
	"github.com/anime-shed/defect-inspector-go/internal/storage"
	"github.com/anime-shed/defect-inspector-go/internal/transport"
	"github.com/anime-shed/defect-inspector-go/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config     *config.Config
	capability *detector.Capability
	history    repository.DetectionRunRepository
	publisher  *observer.EventPublisher
	store      *session.Store
	flow       *flow.Flow
	handler    http.Handler
}

// NewContainer creates a new dependency injection container. The detector is
// loaded once here and shared by every session.
func NewContainer(cfg *config.Config) (*Container, error) {
	return newContainer(cfg, detector.Load)
}

func newContainer(cfg *config.Config, load func(detector.Config) *detector.Capability) (*Container, error) {
	capability := load(detectorConfig(cfg))

	publisher := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)

	c := &Container{
		config:     cfg,
		capability: capability,
		publisher:  publisher,
		store:      session.NewStore(cfg.SessionTTL),
	}

	deps := transport.Dependencies{Store: c.store, Metrics: metrics}

	if cfg.HistoryDBPath != "" {
		db, err := sqlite.New(cfg.HistoryDBPath)
		if err != nil {
			capability.Close()
			return nil, fmt.Errorf("failed to open history database: %w", err)
		}
		repo := sqlite.NewRunRepository(db)
		c.history = repo
		deps.History = repo
		publisher.Subscribe(observer.NewHistoryObserver(repo))
	}

	archive, err := buildArchive(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}

	ingestor := ingest.NewIngestor(validation.NewUploadValidator())
	c.flow = flow.New(capability, ingestor, publisher, archive)
	deps.Flow = c.flow
	c.handler = transport.NewHandler(deps, cfg)

	return c, nil
}

func detectorConfig(cfg *config.Config) detector.Config {
	dc := detector.DefaultConfig()
	if cfg.ModelPath != "" {
		dc.ModelPath = cfg.ModelPath
	}
	if cfg.InputSize > 0 {
		dc.InputSize = cfg.InputSize
	}
	dc.RuntimeLibraryPath = cfg.RuntimeLibraryPath
	dc.ConfidenceThreshold = float32(cfg.ConfidenceThreshold)
	dc.IoUThreshold = float32(cfg.IoUThreshold)
	dc.ClassNames = cfg.ClassNames
	dc.IntraOpThreads = cfg.IntraOpThreads
	return dc
}

func buildArchive(cfg *config.Config) (storage.ResultArchive, error) {
	if !cfg.ArchiveEnabled() {
		return storage.NewNoopArchive(), nil
	}

	archive, err := storage.NewAzureArchive(cfg.AzureAccountName, cfg.AzureAccountKey, cfg.AzureContainer)
	if err != nil {
		return nil, fmt.Errorf("failed to create result archive: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := storage.EnsureContainer(ctx, archive); err != nil {
		return nil, fmt.Errorf("failed to prepare archive container: %w", err)
	}
	return archive, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Store returns the session store
func (c *Container) Store() *session.Store {
	return c.store
}

// Capability returns the detector capability decided at startup
func (c *Container) Capability() *detector.Capability {
	return c.capability
}

// Close waits for pending observers, then releases the detector and the
// history database.
func (c *Container) Close() error {
	c.publisher.Wait()

	var firstErr error
	if err := c.capability.Close(); err != nil {
		firstErr = err
	}
	if c.history != nil {
		if err := c.history.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
