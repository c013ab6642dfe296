package jobs

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"trackmaster/internal/metrics"
	"trackmaster/internal/tracking"
)

// sweepBatchSize bounds how many idle visits one query returns.
const sweepBatchSize = 500

// Connector hands out the application database connection.
type Connector interface {
	GetConnection() *gorm.DB
}

// VisitSweepJob closes visits that have been idle longer than the session
// timeout, so they stop counting as active even when the visitor never
// returns.
type VisitSweepJob struct {
	conn    Connector
	logger  *slog.Logger
	timeout time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewVisitSweepJob(conn Connector, logger *slog.Logger, timeout time.Duration, m *metrics.Metrics) *VisitSweepJob {
	return &VisitSweepJob{
		conn:    conn,
		logger:  logger,
		timeout: timeout,
		metrics: m,
		now:     time.Now,
	}
}

// Run performs one sweep.
func (j *VisitSweepJob) Run() error {
	_, err := j.RunContext(context.Background())
	return err
}

// RunContext performs one sweep and returns how many visits it closed.
func (j *VisitSweepJob) RunContext(ctx context.Context) (int, error) {
	store := tracking.NewGormStore(j.conn.GetConnection(), j.logger)
	expirer := tracking.NewExpirer(store, j.timeout, j.logger, j.metrics)

	closed, err := expirer.Sweep(ctx, j.now().UTC(), sweepBatchSize)
	if err != nil {
		j.logger.Error("Visit sweep failed",
			slog.Int("closed_before_error", closed),
			slog.Any("error", err))
		return closed, err
	}

	j.logger.Debug("Visit sweep finished", slog.Int("closed", closed))
	return closed, nil
}
