// Package app composes the service: configuration, logging, storage,
// per-camera pipelines, the alert worker, and the health supervisors.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cctv/internal/alert"
	"cctv/internal/clock"
	"cctv/internal/config"
	"cctv/internal/domain"
	"cctv/internal/logging"
	"cctv/internal/notify"
	"cctv/internal/record"
	"cctv/internal/source"
	"cctv/internal/store"
	"cctv/internal/supervisor"
)

// Service owns the full runtime and its shutdown order.
// Params: built by NewService from one config file.
// Returns: runnable surveillance service.
type Service struct {
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func()
	store     *store.Store
	worker    *alert.Worker
	pipelines []*Pipeline
	monitors  []*supervisor.Monitor
	status    chan source.Status
	clk       clock.Clock
}

// NewService builds the service from configuration and stored cameras.
// Params: config file path (empty for defaults) and clock.
// Returns: initialized service or the first setup error.
func NewService(configPath string, clk clock.Clock) (*Service, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	// Channel credentials live in the environment; a missing .env file is
	// fine when the variables are set another way.
	if cfg.Service.EnvFile != "" {
		_ = godotenv.Load(cfg.Service.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Service.DBPath)
	if err != nil {
		closeLog()
		return nil, err
	}

	service := &Service{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		store:    st,
		status:   make(chan source.Status, 64),
		clk:      clk,
	}
	if err := service.build(); err != nil {
		_ = st.Close()
		closeLog()
		return nil, err
	}
	return service, nil
}

// build wires the worker, pipelines, and supervisors from stored state.
// Params: none.
// Returns: first wiring error.
func (s *Service) build() error {
	prefs, err := s.store.GetPreferences()
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}
	cameras, err := s.store.ListSources()
	if err != nil {
		return fmt.Errorf("list cameras: %w", err)
	}
	if len(cameras) == 0 {
		s.logger.Warn("no cameras configured, only the alert worker will run")
	}

	// Interface fields stay nil unless the concrete sender built, so the
	// worker's nil checks see a truly absent channel.
	var fallback notify.EmailSender
	if smtp, err := notify.NewSMTPSenderFromEnv(); err != nil {
		s.logger.Warn("smtp relay unavailable", "error", err)
	} else {
		fallback = smtp
	}
	var caller notify.Caller
	if twilio, err := notify.NewTwilioCallerFromEnv(); err != nil {
		s.logger.Warn("voice calls unavailable", "error", err)
	} else {
		caller = twilio
	}

	s.worker = alert.NewWorker(alert.Options{
		Config: s.cfg.Alert,
		Clock:  s.clk,
		Logger: s.logger,
		Primary: notify.NewGmailSender(
			filepath.Join(s.cfg.Service.DataDir, "credentials.json"),
			filepath.Join(s.cfg.Service.DataDir, "token.json"),
			os.Getenv("ALERT_FROM_EMAIL"),
		),
		Fallback: fallback,
		Caller:   caller,
		Ledger:   s.store,
	})

	recordingsDir := prefs.RecordingsDir
	if recordingsDir == "" {
		recordingsDir = filepath.Join(s.cfg.Service.DataDir, "recordings")
	}
	captureCfg := source.Config{
		DeviceWidth:  s.cfg.Capture.DeviceWidth,
		DeviceHeight: s.cfg.Capture.DeviceHeight,
		DeviceFPS:    s.cfg.Capture.DeviceFPS,
		SnapshotFPS:  s.cfg.Capture.SnapshotFPS,
	}

	grace := time.Duration(s.cfg.Record.MotionGraceSec) * time.Second
	for _, camera := range cameras {
		policy := domain.EffectivePolicy(camera.Policy, prefs.RecordPolicyDefault)
		factory := record.NewVideoWriterFactory(
			recordingsDir, prefs.Codec, s.cfg.Capture.DeviceFPS, s.clk)
		engine := record.NewEngine(camera.ID, policy, grace, s.clk, factory)

		pipeline := NewPipeline(camera, policy, captureCfg, s.cfg.Detect,
			engine, s.worker, s.status, s.clk, s.logger)
		s.pipelines = append(s.pipelines, pipeline)
		s.monitors = append(s.monitors,
			supervisor.NewMonitor(camera.ID, pipeline, s.cfg.Supervisor, s.clk, s.logger))
	}
	return nil
}

// Run starts everything and blocks until a signal or context end.
// Params: root context.
// Returns: nil on orderly shutdown.
func (s *Service) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Worker runs on the background context: shutdown drains its queue
	// through the stop sentinel, not through cancellation.
	go s.worker.Run(context.Background())
	go s.drainStatus(runCtx)

	for i, pipeline := range s.pipelines {
		if err := pipeline.Start(); err != nil {
			s.logger.Error("camera start failed, will retry",
				"source_id", s.pipelines[i].src.ID, "error", err)
			s.monitors[i].NoteFailure(s.clk.Now())
		}
	}
	for _, monitor := range s.monitors {
		go monitor.Run(runCtx)
	}
	s.logger.Info("service started", "cameras", len(s.pipelines))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
	case sig := <-sigChan:
		s.logger.Info("signal received", "signal", sig.String())
	}
	return s.shutdown(cancel)
}

// shutdown closes runtime resources in dependency order: sources first so
// no new events are produced, then the worker drains, then storage.
// Params: cancel for the run context.
// Returns: nil; close failures are logged, not propagated.
func (s *Service) shutdown(cancel context.CancelFunc) error {
	cancel()
	for _, pipeline := range s.pipelines {
		pipeline.Stop()
	}
	s.worker.Stop()
	s.worker.Wait()
	if err := s.store.Close(); err != nil {
		s.logger.Error("store close failed", "error", err)
	}
	s.logger.Info("service stopped")
	if s.closeLog != nil {
		s.closeLog()
	}
	return nil
}

// drainStatus logs advisory source status messages until shutdown.
// Params: run context.
// Returns: when canceled.
func (s *Service) drainStatus(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case status := <-s.status:
			s.logger.Debug("source status",
				"source_id", status.SourceID, "status", status.Text)
		}
	}
}
