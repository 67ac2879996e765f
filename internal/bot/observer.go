package bot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/rolewarden/internal/services"
	"github.com/charlesng35/rolewarden/pkg/logger"
)

// Observer translates member role-set changes into store mutations: a grant
// of the tracked role starts the expiry clock, a manual revoke stops it.
type Observer struct {
	grants  *services.GrantService
	gateway Gateway
	grantID int64
	now     func() time.Time
	log     *zap.Logger
}

// ObserverOption customises the Observer.
type ObserverOption func(*Observer)

// WithObserverClock overrides the clock used for grant timestamps.
func WithObserverClock(now func() time.Time) ObserverOption {
	return func(o *Observer) {
		if now != nil {
			o.now = now
		}
	}
}

// NewObserver constructs an Observer for the tracked grant id.
func NewObserver(grants *services.GrantService, gateway Gateway, grantID int64, opts ...ObserverOption) *Observer {
	o := &Observer{
		grants:  grants,
		gateway: gateway,
		grantID: grantID,
		now:     time.Now,
		log:     logger.WithModule("observer"),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// HandleRoleChange processes one membership notification carrying the
// subject's role set before and after the change. Only the tracked grant is
// inspected; store failures are logged and swallowed so the event loop keeps
// running.
func (o *Observer) HandleRoleChange(ctx context.Context, scopeID, subjectID int64, before, after []int64) {
	had := containsRole(before, o.grantID)
	has := containsRole(after, o.grantID)

	switch {
	case has && !had:
		o.recordGrant(ctx, scopeID, subjectID)
	case had && !has:
		o.recordManualRevoke(ctx, scopeID, subjectID)
	}
}

// HandleSnapshot processes a membership notification that carries only the
// current role set, with no before-state. Holding the tracked grant starts
// tracking without resetting an already-running clock; lacking it clears any
// stale row.
func (o *Observer) HandleSnapshot(ctx context.Context, scopeID, subjectID int64, roles []int64) {
	if containsRole(roles, o.grantID) {
		created, err := o.grants.EnsureTracked(ctx, subjectID, scopeID, o.grantID, services.UnknownAttribution, o.now())
		if err != nil {
			o.log.Error("failed to ensure grant tracked",
				zap.Int64("scope_id", scopeID),
				zap.Int64("subject_id", subjectID),
				zap.Error(err),
			)
			return
		}
		if created {
			o.log.Info("grant tracked from snapshot",
				zap.Int64("scope_id", scopeID),
				zap.Int64("subject_id", subjectID),
				zap.Int64("grant_id", o.grantID),
			)
		}
		return
	}

	o.recordManualRevoke(ctx, scopeID, subjectID)
}

func (o *Observer) recordGrant(ctx context.Context, scopeID, subjectID int64) {
	attributedTo := services.UnknownAttribution
	if o.gateway != nil {
		resolved, err := o.gateway.GrantAttribution(ctx, scopeID, subjectID, o.grantID)
		if err != nil {
			// Attribution is best effort and must never block the write.
			o.log.Warn("audit attribution lookup failed",
				zap.Int64("scope_id", scopeID),
				zap.Int64("subject_id", subjectID),
				zap.Error(err),
			)
		} else if resolved != "" {
			attributedTo = resolved
		}
	}

	if err := o.grants.Upsert(ctx, subjectID, scopeID, o.grantID, attributedTo, o.now()); err != nil {
		o.log.Error("failed to record grant",
			zap.Int64("scope_id", scopeID),
			zap.Int64("subject_id", subjectID),
			zap.Error(err),
		)
		return
	}

	o.log.Info("grant recorded",
		zap.Int64("scope_id", scopeID),
		zap.Int64("subject_id", subjectID),
		zap.Int64("grant_id", o.grantID),
		zap.String("granted_by", attributedTo),
	)
}

func (o *Observer) recordManualRevoke(ctx context.Context, scopeID, subjectID int64) {
	removed, err := o.grants.Delete(ctx, subjectID, scopeID, o.grantID)
	if err != nil {
		o.log.Error("failed to clear manually revoked grant",
			zap.Int64("scope_id", scopeID),
			zap.Int64("subject_id", subjectID),
			zap.Error(err),
		)
		return
	}

	if removed {
		o.log.Info("manual revoke recorded",
			zap.Int64("scope_id", scopeID),
			zap.Int64("subject_id", subjectID),
			zap.Int64("grant_id", o.grantID),
		)
	}
}

func containsRole(roles []int64, id int64) bool {
	for _, role := range roles {
		if role == id {
			return true
		}
	}
	return false
}
