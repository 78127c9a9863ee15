package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/escalaapp/escala/internal/models"
	"github.com/escalaapp/escala/internal/services"
	"github.com/escalaapp/escala/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultCacheSpec          = "@hourly"
	defaultAuditSpec          = "@daily"
)

// Cleaner runs the background maintenance jobs: purging expired cache entries
// and pruning audit logs past their retention window. Invitation rows are
// never deleted; their expiry is settled in place by the read paths.
type Cleaner struct {
	db        *gorm.DB
	audit     *services.AuditService
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int

	cacheSchedule string
	auditSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are kept.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithCacheSchedule overrides the cron spec for cache purging.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron spec for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// NewCleaner builds a Cleaner with hourly cache purging and daily audit
// pruning. A nil dependency skips the corresponding job.
func NewCleaner(db *gorm.DB, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:            db,
		audit:         audit,
		now:           time.Now,
		retention:     defaultAuditRetentionDays,
		cacheSchedule: defaultCacheSpec,
		auditSchedule: defaultAuditSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

type cleanupJob struct {
	name string
	spec string
	run  func(context.Context) error
}

// jobs lists the cleanups whose dependencies are present. Start and RunOnce
// iterate the same list so the two paths cannot drift apart.
func (c *Cleaner) jobs() []cleanupJob {
	var jobs []cleanupJob

	if c.db != nil {
		jobs = append(jobs, cleanupJob{
			name: "cache",
			spec: c.cacheSchedule,
			run: func(ctx context.Context) error {
				_, err := CleanupCache(ctx, c.db, c.now())
				return err
			},
		})
	}

	if c.audit != nil && c.retention > 0 {
		jobs = append(jobs, cleanupJob{
			name: "audit",
			spec: c.auditSchedule,
			run: func(ctx context.Context) error {
				_, err := c.audit.CleanupOlderThan(ctx, c.retention)
				return err
			},
		})
	}

	return jobs
}

// Start registers the cleanup jobs with the scheduler. With no jobs to run
// the scheduler is never started.
func (c *Cleaner) Start() error {
	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, job := range jobs {
		if _, err := c.cron.AddFunc(job.spec, func() {
			if err := job.run(context.Background()); err != nil {
				c.log.Warn(job.name+" cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the scheduler. The returned context is done once running jobs
// have finished.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured cleanup sequentially, collecting errors
// rather than stopping at the first. Used by tests and graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, job := range c.jobs() {
		if err := job.run(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// CleanupCache deletes cache entries whose expiry has passed. Entries with a
// zero expiry never expire and are left alone.
func CleanupCache(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("cleanup cache: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := db.WithContext(ctx).
		Where("expires_at <> ? AND expires_at < ?", time.Time{}, now).
		Delete(&models.CacheEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup cache: %w", result.Error)
	}

	return result.RowsAffected, nil
}
