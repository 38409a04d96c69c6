package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"wastesort/internal/advisory"
	"wastesort/internal/broker"
	"wastesort/internal/category"
	"wastesort/internal/config"
	"wastesort/internal/control"
	"wastesort/internal/display"
	"wastesort/internal/logger"
	"wastesort/internal/middleware"
	"wastesort/internal/repository/sqlite"
	"wastesort/internal/route"
	"wastesort/internal/service/ai"
	"wastesort/internal/service/annotate"
	"wastesort/internal/service/pipeline"
	"wastesort/internal/service/recorder"
	"wastesort/internal/service/storage"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config *config.Config
	logger *logger.Logger

	db         *sqlite.DB
	index      *storage.IndexService
	detector   *ai.DetectorService
	hub        *display.HubService
	window     *display.WindowSink
	cell       *control.Cell
	watcher    *control.FileWatcher
	mqttClient mqtt.Client
	controller *control.MQTTController
	manager    *pipeline.Manager
	server     *http.Server
}

// NewApp loads the configuration and builds every service. Nothing runs
// until Run is called.
func NewApp() (*App, error) {
	cfg := config.Load()
	log := logger.NewLogger(cfg)

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sessionRepo := sqlite.NewSessionRepository(db)
	snapshotRepo := sqlite.NewSnapshotRepository(db)
	detectionRepo := sqlite.NewDetectionRepository(db)

	detector, err := ai.NewDetectorService(cfg, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	table := category.Default()
	if missing := table.Missing(detector.Names()); len(missing) > 0 {
		if cfg.SkipUnknownLabels() {
			log.Warning("Category table has no entry for %d model classes, they will be left out of advisories: %v", len(missing), missing)
		} else {
			log.Warning("Category table has no entry for %d model classes, detecting one ends the session: %v", len(missing), missing)
		}
	}
	annotator := annotate.NewAnnotator(annotate.Options{
		LineThickness:  cfg.LineThickness,
		HideLabels:     cfg.HideLabels,
		HideConfidence: cfg.HideConfidence,
	}, log)
	aggregator := advisory.NewAggregator(table, advisory.ParseLocale(cfg.AdvisoryLocale), cfg.SkipUnknownLabels(), log)
	rec := recorder.NewRecorder(recorder.NewJPEGSink(), cfg.SnapshotEvery)
	index := storage.NewIndexService(log, table, snapshotRepo, detectionRepo)

	cell := control.NewCell(cfg.RecordOnStart, cfg.RecordDirectory)

	hub := display.NewHubService(log)
	stream := display.NewMJPEGSink(log)
	sinks := display.Multi{hub, stream}

	a := &App{
		config:   cfg,
		logger:   log,
		db:       db,
		index:    index,
		detector: detector,
		hub:      hub,
		cell:     cell,
		watcher:  control.NewFileWatcher(cfg.ControlDirectory, cell, log),
	}

	if cfg.LocalWindow {
		a.window = display.NewWindowSink("wastesort", log)
		sinks = append(sinks, a.window)
	}

	if cfg.MQTTBroker != "" {
		client, err := broker.Connect(cfg, log)
		if err != nil {
			// The broker is optional, the rest of the system works without it
			log.Error("MQTT disabled: %v", err)
		} else {
			a.mqttClient = client
			sinks = append(sinks, display.NewMQTTAdvisorySink(client, cfg.MQTTAdvisoryTopic, log))
		}
	}

	a.manager = pipeline.NewManager(pipeline.ManagerDeps{
		Detector:   detector,
		Annotator:  annotator,
		Aggregator: aggregator,
		Recorder:   rec,
		Display:    sinks,
		Cell:       cell,
		Sessions:   sessionRepo,
		JournalFor: func(id string) pipeline.Journal { return index.ForSession(id) },
	}, pipeline.Options{
		PausePollInterval: cfg.PausePollInterval,
		RetryBase:         cfg.RetryBase,
		RetryMax:          cfg.RetryMax,
	}, log)

	if a.mqttClient != nil {
		a.controller = control.NewMQTTController(a.mqttClient, cfg.MQTTControlTopic, cell, a.statusMap, log)
	}

	router := route.SetupRoutes(route.Deps{
		Config:        cfg,
		Logger:        log,
		Auth:          middleware.NewAuth(),
		Cell:          cell,
		Sessions:      a.manager,
		Hub:           hub,
		MJPEG:         stream,
		Detector:      detector,
		Annotator:     annotator,
		Aggregator:    aggregator,
		Table:         table,
		SessionRepo:   sessionRepo,
		SnapshotRepo:  snapshotRepo,
		DetectionRepo: detectionRepo,
	})
	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// statusMap is the session status reported to MQTT get_status commands.
func (a *App) statusMap() map[string]interface{} {
	status := a.manager.Status()
	m := status.Stats.Map()
	m["session_id"] = status.ID
	m["source"] = status.Source
	m["running"] = status.Running
	if status.Reason != "" {
		m["reason"] = string(status.Reason)
	}
	return m
}

// Run starts the background services, a session on the configured source and
// the HTTP server, and blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.index.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.hub.Run(ctx)
	}()

	if err := a.watcher.Start(ctx); err != nil {
		a.logger.Error("Control file watcher disabled: %v", err)
	}
	if a.controller != nil {
		if err := a.controller.Start(ctx); err != nil {
			a.logger.Error("MQTT controller disabled: %v", err)
		}
	}

	if a.config.Source != "" {
		if _, err := a.manager.Start(a.config.Source); err != nil {
			a.logger.Error("Failed to start session on %s: %v", a.config.Source, err)
		}
	}

	a.logger.Info("Waste sorting server listening on http://localhost:%d", a.config.Port)
	a.logger.Info("Source: %s, model: %s, recordings: %s", a.config.Source, a.config.ModelPath, a.config.RecordDirectory)

	serverErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serverErr:
	}

	a.shutdown()
	cancel()
	wg.Wait()
	a.close()
	return err
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.manager.Stop(ctx); err != nil {
		a.logger.Warning("Session did not stop in time, cancelling: %v", err)
	}
	a.manager.Shutdown()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warning("HTTP server shutdown: %v", err)
	}
}

func (a *App) close() {
	if a.controller != nil {
		a.controller.Stop()
	}
	if a.mqttClient != nil {
		a.mqttClient.Disconnect(250)
	}
	if err := a.watcher.Close(); err != nil {
		a.logger.Warning("Failed to close control watcher: %v", err)
	}
	if a.window != nil {
		a.window.Close()
	}
	if err := a.detector.Close(); err != nil {
		a.logger.Warning("Failed to close detector: %v", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warning("Failed to close database: %v", err)
	}
	a.logger.Info("Shutdown complete")
}
