// Package app wires every recommendation-core component into a single
// running process: storage, the CF/CB/scorer algorithms, the hybrid
// orchestrator, the real-time analytics engine, and the interaction
// ingest stream. There is no HTTP API surface here; the core is a
// library plus a background-worker process, not a web service.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/eventiq/recoengine/internal/analytics"
	"github.com/eventiq/recoengine/internal/cb"
	"github.com/eventiq/recoengine/internal/cf"
	"github.com/eventiq/recoengine/internal/config"
	"github.com/eventiq/recoengine/internal/database"
	"github.com/eventiq/recoengine/internal/messaging"
	"github.com/eventiq/recoengine/internal/models"
	"github.com/eventiq/recoengine/internal/orchestrator"
	"github.com/eventiq/recoengine/internal/scorers"
	"github.com/eventiq/recoengine/internal/store"
	"github.com/eventiq/recoengine/internal/textenc"
)

// retrainInterval is how often the CF Recommender retrains off the full
// interaction history and the CB catalog is rebuilt. Hourly keeps the
// model fresh without the training cost dominating the process.
const retrainInterval = time.Hour

// App owns every long-lived component and the background goroutines that
// drive them: the interaction consumer, the CF retrain loop, and the
// analytics engine's own internal loops.
type App struct {
	config *config.Config
	logger *logrus.Logger

	db         *database.Database
	messageBus *messaging.MessageBus

	interactions *store.InteractionStore
	events       *store.EventStore
	preferences  *store.PreferencesStore

	encoder    *textenc.Encoder
	cf         *cf.Recommender
	cb         *cb.Recommender
	popularity *scorers.Popularity
	location   *scorers.Location
	trending   *scorers.Trending

	Analytics    *analytics.Engine
	Orchestrator *orchestrator.Orchestrator

	cfSnapshotPath string
	cbCatalogPath  string

	metricsServer *http.Server
	cancel        context.CancelFunc
	done          chan struct{}
}

// New constructs and wires every component but starts nothing; call Run
// to start background workers.
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg)

	db, err := database.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	messageBus, err := messaging.NewMessageBus(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize message bus: %w", err)
	}

	interactionStore := store.NewInteractionStore(db.PG, logger)
	eventStore := store.NewEventStore(db.PG, db.Redis.Warm, logger, cfg.Algorithms.Caching.CBCandidatesTTL)
	preferencesStore := store.NewPreferencesStore(db.PG, db.Redis.Warm, logger, cfg.Algorithms.Caching.OrchestrationTTL)

	encoder := textenc.New(db.Redis.Cold, logger, textenc.Config{
		Dimensions:  cfg.Models.TextEmbedding.Dimensions,
		CacheTTL:    cfg.Algorithms.Caching.EmbeddingsTTL,
		CachePrefix: "embed",
	})

	cfRecommender := cf.New(cf.Config{
		MinInteractions: cfg.Algorithms.CFMinInteractions,
		Factors:         cfg.Algorithms.CFNFactors,
		Epochs:          cfg.Algorithms.CFNEpochs,
	}, logger)

	cfSnapshotPath := filepath.Join(cfg.Models.SnapshotDir, "cf_model.json")
	cbCatalogPath := filepath.Join(cfg.Models.SnapshotDir, "cb_catalog.json")
	if _, err := os.Stat(cfSnapshotPath); err == nil {
		if err := cfRecommender.LoadSnapshot(cfSnapshotPath); err != nil {
			logger.WithError(err).Warn("cf: persisted snapshot rejected, starting untrained until next retrain")
		}
	}

	cbRecommender := cb.New(encoder, cb.Weights{
		Category:    cfg.Algorithms.CategoryWeight,
		Tag:         cfg.Algorithms.TagWeight,
		Description: cfg.Algorithms.DescriptionWeight,
		Location:    cfg.Algorithms.LocationWeight,
	})

	popularity := scorers.NewPopularity(cfRecommender)
	location := scorers.NewLocation()
	trending := scorers.NewTrending(db.Neo4j, db.Redis.Warm, logger, 48*time.Hour)

	analyticsEngine := analytics.NewEngine(analytics.Config{
		WindowSeconds:              cfg.Algorithms.RealTimeWindowSeconds,
		AnomalyThresholdMultiplier: analytics.DefaultAnomalyThreshold,
		EventBufferCapacity:        10000,
	}, logger, nil)

	orch := orchestrator.New(
		orchestrator.Config{
			CFMinInteractions: cfg.Algorithms.CFMinInteractions,
			DiversityFactor:   cfg.Algorithms.DiversityFactor,
			ExplorationFactor: cfg.Algorithms.ExplorationFactor,
			EnableLocation:    true,
			EnableTrending:    true,
			CandidateTimeout:  cfg.Algorithms.ModelInferenceTimeout,
			ModelVersion:      "v1",
		},
		cfRecommender,
		cbRecommender,
		popularity,
		location,
		trending,
		eventStore,
		interactionStore,
		preferencesStore,
		logger,
	)

	return &App{
		config:       cfg,
		logger:       logger,
		db:           db,
		messageBus:   messageBus,
		interactions: interactionStore,
		events:       eventStore,
		preferences:  preferencesStore,
		encoder:      encoder,
		cf:           cfRecommender,
		cb:           cbRecommender,
		popularity:   popularity,
		location:     location,
		trending:     trending,
		Analytics:      analyticsEngine,
		Orchestrator:   orch,
		cfSnapshotPath: cfSnapshotPath,
		cbCatalogPath:  cbCatalogPath,
		done:           make(chan struct{}),
	}, nil
}

// Run starts every background worker: the interaction ingest consumer,
// the periodic CF retrain loop, the analytics engine's loops, and (when
// monitoring is enabled) a minimal health/metrics listener. It returns
// immediately; workers run until Shutdown is called.
func (a *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.Analytics.Start()

	go a.consumeInteractions(ctx)
	go a.retrainLoop(ctx)

	if a.config.Monitoring.Enabled {
		a.startMetricsServer()
	}
}

// consumeInteractions feeds every ingested interaction into both the
// durable Interaction Store and the real-time Analytics Engine, so a
// single event stream serves training data and live metrics alike.
func (a *App) consumeInteractions(ctx context.Context) {
	err := a.messageBus.ConsumeInteractions(ctx, func(in models.Interaction) error {
		a.interactions.Record(in)
		a.Analytics.ProcessInteraction(in)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		a.logger.WithError(err).Error("interaction consumer exited unexpectedly")
	}
}

// retrainLoop periodically retrains the CF Recommender from the full
// interaction history and rebuilds the CB catalog from the event corpus,
// persisting both snapshots. A failed scan is logged and retried next
// tick; the previously published model, if any, keeps serving in the
// meantime.
func (a *App) retrainLoop(ctx context.Context) {
	ticker := time.NewTicker(retrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.retrain(ctx)
		}
	}
}

func (a *App) retrain(ctx context.Context) {
	version := uuid.New().String()

	history, err := a.interactions.BulkScan(ctx)
	if err != nil {
		a.logger.WithError(err).Warn("cf retrain: failed to scan interaction history")
		return
	}
	if err := a.cf.Train(history, version); err != nil {
		a.logger.WithError(err).Warn("cf retrain: training failed")
		return
	}
	if a.cf.IsTrained() {
		if err := a.cf.SaveSnapshot(a.cfSnapshotPath); err != nil {
			a.logger.WithError(err).Warn("cf retrain: failed to persist snapshot")
		}
	}

	events, err := a.events.All(ctx)
	if err != nil {
		a.logger.WithError(err).Warn("cb rebuild: failed to scan event corpus")
		return
	}
	catalog := cb.BuildCatalog(events, version)
	if err := catalog.Save(a.cbCatalogPath); err != nil {
		a.logger.WithError(err).Warn("cb rebuild: failed to persist catalog")
	}
}

func (a *App) startMetricsServer() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle(a.config.Monitoring.MetricsPath, promhttp.HandlerFor(a.Analytics.Registry(), promhttp.HandlerOpts{}))

	a.metricsServer = &http.Server{
		Addr:    ":" + a.config.Monitoring.Port,
		Handler: mux,
	}

	go func() {
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.WithError(err).Error("metrics server failed")
		}
	}()
}

// Shutdown stops every background worker and closes storage connections.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down application")

	if a.cancel != nil {
		a.cancel()
	}
	a.Analytics.Stop()
	a.interactions.Stop()
	a.encoder.Stop()

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.WithError(err).Warn("metrics server shutdown error")
		}
	}

	if err := a.messageBus.Close(); err != nil {
		a.logger.WithError(err).Warn("message bus close error")
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("error closing database connections")
		return err
	}
	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}
