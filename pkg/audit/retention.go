package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// DefaultRetentionSchedule runs cleanup daily at 03:00
const DefaultRetentionSchedule = "0 3 * * *"

// RetentionJob deletes audit events older than the retention policy. Cleanup
// spans every tenant, so it uses the unscoped accessor.
type RetentionJob struct {
	events *storage.Unscoped[Event, *Event]
	policy RetentionPolicy
	logger *observability.Logger
	now    func() time.Time
	cron   *cron.Cron
}

// NewRetentionJob creates a retention job
func NewRetentionJob(store *storage.Store, policy RetentionPolicy, logger *observability.Logger) *RetentionJob {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RetentionJob{
		events: storage.NewUnscoped[Event](store),
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// Cleanup removes events older than the retention period and returns how many
// were deleted
func (j *RetentionJob) Cleanup(ctx context.Context) (int64, error) {
	if j.policy.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := j.now().UTC().AddDate(0, 0, -j.policy.RetentionDays)

	n, err := j.events.Delete(ctx, storage.Where(storage.Lt("occurred_at", cutoff)))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up audit events: %w", err)
	}
	return n, nil
}

// Run performs one cleanup pass. It is the cron entry point and never panics.
func (j *RetentionJob) Run() {
	defer observability.RecoverPanic(j.logger, "audit retention")

	start := j.now()
	n, err := j.Cleanup(context.Background())
	if err != nil {
		j.logger.WithError(err).Error("Audit retention failed")
		return
	}
	j.logger.WithFields(map[string]interface{}{
		"deleted":     n,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Audit retention completed")
}

// Start schedules Run on the cron schedule
func (j *RetentionJob) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultRetentionSchedule
	}
	c := cron.New()
	if _, err := c.AddJob(schedule, j); err != nil {
		return fmt.Errorf("failed to schedule audit retention: %w", err)
	}
	c.Start()
	j.cron = c
	j.logger.WithField("schedule", schedule).Info("Audit retention scheduled")
	return nil
}

// Stop stops the scheduler and returns a context that is done once a running
// cleanup has finished
func (j *RetentionJob) Stop() context.Context {
	if j.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return j.cron.Stop()
}
