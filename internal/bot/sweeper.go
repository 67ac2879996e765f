package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/rolewarden/internal/models"
	"github.com/charlesng35/rolewarden/internal/monitoring"
	"github.com/charlesng35/rolewarden/internal/services"
	apperrors "github.com/charlesng35/rolewarden/pkg/errors"
	"github.com/charlesng35/rolewarden/pkg/logger"
)

const (
	// DefaultExpiry is how long a subject keeps the tracked role.
	DefaultExpiry = 24 * time.Hour

	// DefaultSchedule is the sweep cadence.
	DefaultSchedule = "@every 5m"
)

// CycleStats summarises one sweep cycle.
type CycleStats struct {
	Scanned  int // expired rows fetched from the store
	Revoked  int // roles removed remotely, row deleted
	Cleaned  int // dangling rows deleted without a remote call
	Retained int // rows kept for retry on the next cycle
	Errors   int // rows whose processing failed
}

type rowOutcome int

const (
	outcomeRetained rowOutcome = iota
	outcomeRevoked
	outcomeCleaned
)

// Sweeper periodically scans the store for grants past their expiry and
// revokes them through the gateway. Cycles never overlap: a firing that
// arrives while the previous cycle is still running is skipped.
type Sweeper struct {
	grants  *services.GrantService
	gateway Gateway
	cron    *cron.Cron
	now     func() time.Time
	log     *zap.Logger
	metrics *monitoring.Metrics

	expiry            time.Duration
	schedule          string
	notify            bool
	dropOnRemoteError bool
}

// SweeperOption customises the Sweeper.
type SweeperOption func(*Sweeper)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) SweeperOption {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithClock overrides the clock used for expiry comparisons.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithExpiry adjusts how long a grant lives before revocation.
func WithExpiry(expiry time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if expiry > 0 {
			s.expiry = expiry
		}
	}
}

// WithSchedule overrides the cron specification for the sweep cycle.
func WithSchedule(spec string) SweeperOption {
	return func(s *Sweeper) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// WithNotifications toggles the best-effort direct message sent to subjects
// after a successful revocation.
func WithNotifications(enabled bool) SweeperOption {
	return func(s *Sweeper) {
		s.notify = enabled
	}
}

// WithDropOnRemoteError switches from the default retain-and-retry policy to
// deleting rows whose remote revoke failed transiently.
func WithDropOnRemoteError(enabled bool) SweeperOption {
	return func(s *Sweeper) {
		s.dropOnRemoteError = enabled
	}
}

// WithMetrics attaches sweep counters.
func WithMetrics(m *monitoring.Metrics) SweeperOption {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

// NewSweeper constructs a Sweeper with the default 24h expiry and 5m cadence.
func NewSweeper(grants *services.GrantService, gateway Gateway, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		grants:   grants,
		gateway:  gateway,
		now:      time.Now,
		expiry:   DefaultExpiry,
		schedule: DefaultSchedule,
		notify:   true,
		log:      logger.WithModule("sweeper"),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		s.cron = cron.New(
			cron.WithLogger(cron.DiscardLogger),
			cron.WithChain(
				cron.Recover(cron.DiscardLogger),
				cron.SkipIfStillRunning(cron.DiscardLogger),
			),
		)
	}

	return s
}

// Start registers the sweep job and launches the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("sweeper: register schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.log.Info("sweeper started",
		zap.String("schedule", s.schedule),
		zap.Duration("expiry", s.expiry),
	)
	return nil
}

// Stop halts the scheduler, returning a context that is done once any
// running cycle has drained.
func (s *Sweeper) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// sweep is the cycle boundary: an error escaping RunOnce is logged here and
// never disturbs future scheduling.
func (s *Sweeper) sweep() {
	stats, err := s.RunOnce(context.Background())
	if err != nil {
		s.log.Error("sweep cycle finished with errors",
			zap.Int("scanned", stats.Scanned),
			zap.Int("errors", stats.Errors),
			zap.Error(err),
		)
	}
}

// RunOnce executes a single sweep cycle. Errors from individual rows are
// aggregated rather than aborting the cycle; the returned stats always
// reflect every row that was attempted.
func (s *Sweeper) RunOnce(ctx context.Context) (CycleStats, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var stats CycleStats
	started := time.Now()

	rows, err := s.grants.ListExpired(ctx, s.expiry, s.now())
	if err != nil {
		return stats, fmt.Errorf("sweeper: %w", err)
	}
	stats.Scanned = len(rows)

	var errs error
	for _, row := range rows {
		outcome, rowErr := s.processRow(ctx, row)
		if rowErr != nil {
			stats.Errors++
			errs = multierr.Append(errs, rowErr)
			s.log.Error("expired grant processing failed",
				zap.Int64("subject_id", row.SubjectID),
				zap.Int64("scope_id", row.ScopeID),
				zap.Error(rowErr),
			)
		}

		switch outcome {
		case outcomeRevoked:
			stats.Revoked++
		case outcomeCleaned:
			stats.Cleaned++
		case outcomeRetained:
			stats.Retained++
		}
	}

	if count, countErr := s.grants.Count(ctx); countErr == nil {
		s.metrics.SetPendingGrants(count)
	}
	s.metrics.RecordSweep(time.Since(started), stats.Revoked, stats.Cleaned, stats.Retained, stats.Errors)

	if stats.Scanned == 0 {
		s.log.Debug("sweep cycle complete, nothing expired")
	} else {
		s.log.Info("sweep cycle complete",
			zap.Int("scanned", stats.Scanned),
			zap.Int("revoked", stats.Revoked),
			zap.Int("cleaned", stats.Cleaned),
			zap.Int("retained", stats.Retained),
			zap.Int("errors", stats.Errors),
		)
	}

	return stats, errs
}

// processRow resolves one expired row and attempts revocation. Resolution
// failures that mean the referenced entity is gone are handled by deleting
// the row; privilege and transient failures retain it for the next cycle.
func (s *Sweeper) processRow(ctx context.Context, row models.PendingGrant) (rowOutcome, error) {
	scopeName, err := s.gateway.ResolveScope(ctx, row.ScopeID)
	if errors.Is(err, apperrors.ErrScopeNotFound) {
		return s.cleanupRow(ctx, row, "scope unreachable")
	}
	if err != nil {
		return outcomeRetained, fmt.Errorf("resolve scope %d: %w", row.ScopeID, err)
	}

	if _, err := s.gateway.ResolveSubject(ctx, row.ScopeID, row.SubjectID); err != nil {
		if errors.Is(err, apperrors.ErrSubjectNotFound) {
			return s.cleanupRow(ctx, row, "subject left scope")
		}
		return outcomeRetained, fmt.Errorf("resolve subject %d in scope %d: %w", row.SubjectID, row.ScopeID, err)
	}

	grant, err := s.gateway.ResolveGrant(ctx, row.ScopeID, row.GrantID)
	if err != nil {
		if errors.Is(err, apperrors.ErrGrantNotFound) {
			return s.cleanupRow(ctx, row, "grant deleted")
		}
		return outcomeRetained, fmt.Errorf("resolve grant %d in scope %d: %w", row.GrantID, row.ScopeID, err)
	}

	reason := fmt.Sprintf("Automatic removal after %s", FormatDuration(s.expiry))
	if err := s.gateway.RevokeGrant(ctx, row.ScopeID, row.SubjectID, row.GrantID, reason); err != nil {
		if errors.Is(err, apperrors.ErrInsufficientPrivilege) {
			// Configuration problem an operator can fix by reordering the
			// role hierarchy; keep the row and complain every cycle.
			return outcomeRetained, fmt.Errorf("revoke grant %d from subject %d: %w", row.GrantID, row.SubjectID, err)
		}

		if s.dropOnRemoteError {
			outcome, cleanupErr := s.cleanupRow(ctx, row, "remote revoke failed, drop policy active")
			return outcome, multierr.Append(fmt.Errorf("revoke grant %d from subject %d: %w", row.GrantID, row.SubjectID, err), cleanupErr)
		}
		return outcomeRetained, fmt.Errorf("revoke grant %d from subject %d: %w", row.GrantID, row.SubjectID, err)
	}

	if _, err := s.grants.Delete(ctx, row.SubjectID, row.ScopeID, row.GrantID); err != nil {
		// The role is gone remotely; the observer will clear the row when the
		// removal event arrives, so this is not worth retrying here.
		return outcomeRevoked, fmt.Errorf("delete revoked row: %w", err)
	}

	s.log.Info("expired grant revoked",
		zap.Int64("subject_id", row.SubjectID),
		zap.Int64("scope_id", row.ScopeID),
		zap.Int64("grant_id", row.GrantID),
		zap.String("granted_by", row.GrantedBy),
		zap.Time("granted_at", row.GrantedAt),
	)

	if s.notify {
		message := fmt.Sprintf("Your %q role on %s was removed automatically %s after it was granted.",
			grant.Name, scopeName, FormatDuration(s.expiry))
		if err := s.gateway.Notify(ctx, row.SubjectID, message); err != nil {
			// Closed DMs are common; not part of the contract.
			s.log.Debug("expiry notification not delivered",
				zap.Int64("subject_id", row.SubjectID),
				zap.Error(err),
			)
		}
	}

	return outcomeRevoked, nil
}

func (s *Sweeper) cleanupRow(ctx context.Context, row models.PendingGrant, why string) (rowOutcome, error) {
	if _, err := s.grants.Delete(ctx, row.SubjectID, row.ScopeID, row.GrantID); err != nil {
		return outcomeRetained, fmt.Errorf("cleanup row for subject %d: %w", row.SubjectID, err)
	}

	s.log.Warn("pending grant no longer resolvable, row removed",
		zap.String("reason", why),
		zap.Int64("subject_id", row.SubjectID),
		zap.Int64("scope_id", row.ScopeID),
		zap.Int64("grant_id", row.GrantID),
	)
	return outcomeCleaned, nil
}
