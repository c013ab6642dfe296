package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"trackmaster/internal/config"
	"trackmaster/internal/metrics"
	"trackmaster/internal/pkg/geoip"
)

// Scheduler runs the background jobs. It implements cartridge.BackgroundWorker.
type Scheduler struct {
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool

	sweepInterval time.Duration

	// Serializes job executions.
	processingMutex sync.Mutex
	isProcessing    bool

	visitSweep  *VisitSweepJob
	geoIPReload *GeoIPReloadJob

	sweepTicker *time.Ticker
	geoIPTicker *time.Ticker
}

func NewScheduler(conn Connector, reader *geoip.Reader, logger *slog.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.GetConfig()

	s := &Scheduler{
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		enabled:       true,
		sweepInterval: cfg.GetJobInterval(),
	}

	s.visitSweep = NewVisitSweepJob(conn, logger, cfg.GetSessionTimeout(), metrics.Default())
	if reader != nil {
		s.geoIPReload = NewGeoIPReloadJob(reader, cfg.GeoDBPath, logger)
	}

	return s, nil
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")
	s.isRunning = true

	s.sweepTicker = s.startJob("visit_sweep", s.sweepInterval, s.visitSweep.Run)
	if s.geoIPReload != nil {
		s.geoIPTicker = s.startJob("geoip_reload", GeoIPReloadInterval, s.geoIPReload.Run)
	}

	s.logger.Info("Background jobs started", slog.Duration("sweep_interval", s.sweepInterval))
	return nil
}

// startJob runs fn once right away and then on every tick until Stop.
func (s *Scheduler) startJob(name string, interval time.Duration, fn func() error) *time.Ticker {
	s.logger.Info("Starting job", slog.String("job", name), slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)

	go func() {
		s.executeJobSafely(name, fn)

		for {
			select {
			case <-ticker.C:
				s.executeJobSafely(name, fn)
			case <-s.ctx.Done():
				s.logger.Info("Job stopped", slog.String("job", name))
				return
			}
		}
	}()

	return ticker
}

// Stop halts all background jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	if s.sweepTicker != nil {
		s.sweepTicker.Stop()
	}
	if s.geoIPTicker != nil {
		s.geoIPTicker.Stop()
	}

	s.cancel()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}

// SweepVisits runs the visit sweep immediately.
func (s *Scheduler) SweepVisits(ctx context.Context) (int, error) {
	return s.visitSweep.RunContext(ctx)
}
