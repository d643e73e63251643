package services

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/tripwise/internal/config"
	"github.com/temcen/tripwise/internal/database"
	"github.com/temcen/tripwise/internal/messaging"
	"github.com/temcen/tripwise/internal/ml"
	"github.com/temcen/tripwise/internal/validation"
)

type Services struct {
	Health                     *HealthService
	Metrics                    *MetricsCollector
	Models                     *ml.ModelRegistry
	Reference                  *ReferenceStore
	RecommendationOrchestrator *RecommendationOrchestrator
	HistoryRecorder            *HistoryRecorder
	// HistoryReader is nil unless history is stored in PostgreSQL.
	HistoryReader HistoryReader
	Interactions  *InteractionWriter

	publisher *messaging.HistoryPublisher
	config    *config.Config
	logger    *logrus.Logger
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	metrics := NewMetricsCollector(prometheus.DefaultRegisterer)

	validator, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact schemas: %w", err)
	}
	registry := ml.NewModelRegistry(logger)
	artifacts := ml.NewArtifactLoader(ml.ArtifactPaths{
		Dir:          cfg.Models.ArtifactDir,
		Manifest:     cfg.Models.Manifest,
		Predictor:    cfg.Models.Predictor,
		ContentIndex: cfg.Models.ContentIndex,
		Segmentation: cfg.Models.Segmentation,
	}, validator, registry, logger)

	dataSource := NewPostgresDataSource(db.PG, logger)
	reference := NewReferenceStore(dataSource, artifacts, metrics, logger)

	svc := &Services{
		Metrics:   metrics,
		Models:    registry,
		Reference: reference,
		config:    cfg,
		logger:    logger,
	}

	// History sink
	var sink HistorySink
	switch cfg.History.Sink {
	case "kafka":
		svc.publisher = messaging.NewHistoryPublisher(cfg, logger)
		sink = svc.publisher
	case "postgres":
		store := NewPostgresHistoryStore(db.PG, logger)
		sink = store
		svc.HistoryReader = store
	default:
		sink = NewLogHistorySink(logger)
	}
	svc.HistoryRecorder = NewHistoryRecorder(sink, cfg.History, metrics, logger)

	// Signal adapters
	var popularity PopularityLookup
	if cfg.Recommendation.PopularitySource == "neo4j" && db.Neo4j != nil {
		popularity = NewNeo4jPopularityLookup(db.Neo4j, logger)
	}
	var clusterCache *ClusterCache
	if cfg.Recommendation.Caching.Enabled {
		clusterCache = NewClusterCache(db.Redis.Hot, cfg.Recommendation.Caching.ClusterTTL, metrics, logger)
	}
	adapters := []SignalAdapter{
		NewRatingAdapter(cfg.Recommendation.PredictorConcurrency, metrics, logger),
		NewSimilarityAdapter(logger),
		NewClusterAdapter(popularity, clusterCache, logger),
	}

	svc.RecommendationOrchestrator = NewRecommendationOrchestrator(
		reference, adapters, svc.HistoryRecorder, db.Redis.Warm,
		cfg.Recommendation, metrics, logger,
	)
	svc.Interactions = NewInteractionWriter(db.PG, reference, logger)
	svc.Health = NewHealthService(logger, db, reference, registry)

	logger.WithFields(logrus.Fields{
		"history_sink":      sink.Name(),
		"popularity_source": cfg.Recommendation.PopularitySource,
		"caching":           cfg.Recommendation.Caching.Enabled,
	}).Info("Services initialized")

	return svc, nil
}

// Start loads the first reference snapshot and starts background work.
// Failing to load the first snapshot is fatal.
func (s *Services) Start(ctx context.Context) error {
	loadCtx, cancel := context.WithTimeout(ctx, s.config.Reference.LoadTimeout)
	defer cancel()

	if _, err := s.Reference.Reload(loadCtx); err != nil {
		return fmt.Errorf("initial reference load failed: %w", err)
	}

	go s.Reference.Run(ctx, s.config.Reference.ReloadInterval, s.config.Reference.LoadTimeout)
	s.Health.Start(ctx)
	return nil
}

// Shutdown drains pending history and closes the history publisher.
func (s *Services) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.HistoryRecorder.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors during services shutdown: %v", errs)
	}
	return nil
}
