package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/platform/cache"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// stockIntegrityLockTTL stays under the 30 minute schedule.
const stockIntegrityLockTTL = 25 * time.Minute

// IntegrityScanner reports positions that break ledger invariants.
type IntegrityScanner interface {
	IntegrityFindings(ctx context.Context) ([]inventory.IntegrityFinding, error)
}

// JobLocker serialises runs across workers.
type JobLocker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// StockIntegrityJob inspects stock positions for negative quantities and
// drift against their change history.
type StockIntegrityJob struct {
	Scanner IntegrityScanner
	Locker  JobLocker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStockIntegrityJob initialises the integrity handler.
func NewStockIntegrityJob(scanner IntegrityScanner, locker JobLocker, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockIntegrityJob {
	return &StockIntegrityJob{Scanner: scanner, Locker: locker, Logger: logger, Metrics: metrics}
}

// Handle executes the integrity scan.
func (j *StockIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Scanner == nil {
		return errors.New("stock integrity: handler not configured")
	}
	payload, err := decodeScheduled(t)
	if err != nil {
		return err
	}
	logger := j.logger().With(slog.String("job", TaskStockIntegrity), slog.String("reason", payload.Reason))

	run := func(ctx context.Context) error {
		tracker := j.Metrics.Track(TaskStockIntegrity)
		findings, err := j.Scanner.IntegrityFindings(ctx)
		if err != nil {
			logger.Error("stock integrity scan failed", slog.Any("error", err))
			return tracker.End(err)
		}
		counts := map[string]int{}
		for _, f := range findings {
			counts[f.Kind]++
			logger.Warn("stock integrity finding",
				slog.String("kind", f.Kind),
				slog.Int64("warehouse_id", f.WarehouseID),
				slog.Int64("product_id", f.ProductID),
				slog.String("detail", f.Detail))
		}
		for kind, n := range counts {
			j.Metrics.AddFindings(kind, n)
		}
		logger.Info("stock integrity scan finished", slog.Int("findings", len(findings)))
		return tracker.End(nil)
	}

	if j.Locker == nil {
		return run(ctx)
	}
	err = j.Locker.WithLock(ctx, shared.StockIntegrityLockKey, stockIntegrityLockTTL, run)
	if errors.Is(err, cache.ErrLockHeld) {
		logger.Info("stock integrity scan already running, skipped")
		return nil
	}
	return err
}

func (j *StockIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
