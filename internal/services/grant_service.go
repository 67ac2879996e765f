package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/rolewarden/internal/models"
)

// UnknownAttribution is recorded when the audit trail cannot tell us who
// granted the role.
const UnknownAttribution = "unknown"

// GrantService persists and queries pending role revocations. It is the only
// writer of the pending_grants table besides nobody: both the observer and
// the sweeper go through it.
type GrantService struct {
	db *gorm.DB
}

// NewGrantService constructs a GrantService using the provided database handle.
func NewGrantService(db *gorm.DB) (*GrantService, error) {
	if db == nil {
		return nil, errors.New("grant service: db is required")
	}
	return &GrantService{db: db}, nil
}

// Upsert inserts or replaces the row for the (subject, scope, grant) triple.
// A repeated grant is not an error: the timestamp and attribution are
// replaced, restarting the expiry clock.
func (s *GrantService) Upsert(ctx context.Context, subjectID, scopeID, grantID int64, attributedTo string, now time.Time) error {
	ctx = ensureContext(ctx)

	if err := validateKey(subjectID, scopeID, grantID); err != nil {
		return fmt.Errorf("grant service: upsert: %w", err)
	}

	row := models.PendingGrant{
		SubjectID: subjectID,
		ScopeID:   scopeID,
		GrantID:   grantID,
		GrantedAt: now.UTC(),
		GrantedBy: normalizeAttribution(attributedTo),
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "subject_id"},
				{Name: "scope_id"},
				{Name: "grant_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"granted_at", "granted_by"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("grant service: upsert: %w", err)
	}
	return nil
}

// EnsureTracked inserts a row only when none exists for the triple. Used by
// the startup reconciliation scan so an already-running expiry clock is never
// reset. Reports whether a row was created.
func (s *GrantService) EnsureTracked(ctx context.Context, subjectID, scopeID, grantID int64, attributedTo string, now time.Time) (bool, error) {
	ctx = ensureContext(ctx)

	if err := validateKey(subjectID, scopeID, grantID); err != nil {
		return false, fmt.Errorf("grant service: ensure tracked: %w", err)
	}

	var row models.PendingGrant
	result := s.db.WithContext(ctx).
		Where(models.PendingGrant{SubjectID: subjectID, ScopeID: scopeID, GrantID: grantID}).
		Attrs(models.PendingGrant{
			GrantedAt: now.UTC(),
			GrantedBy: normalizeAttribution(attributedTo),
		}).
		FirstOrCreate(&row)
	if result.Error != nil {
		return false, fmt.Errorf("grant service: ensure tracked: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// Delete removes the row for the triple if present. Deleting an absent row is
// not an error; the return value reports whether a row existed.
func (s *GrantService) Delete(ctx context.Context, subjectID, scopeID, grantID int64) (bool, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("subject_id = ? AND scope_id = ? AND grant_id = ?", subjectID, scopeID, grantID).
		Delete(&models.PendingGrant{})
	if result.Error != nil {
		return false, fmt.Errorf("grant service: delete: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// ListExpired returns every row granted at least olderThan before now. The
// boundary is inclusive: a grant exactly olderThan old is expired.
func (s *GrantService) ListExpired(ctx context.Context, olderThan time.Duration, now time.Time) ([]models.PendingGrant, error) {
	ctx = ensureContext(ctx)

	cutoff := now.UTC().Add(-olderThan)

	var rows []models.PendingGrant
	err := s.db.WithContext(ctx).
		Where("granted_at <= ?", cutoff).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("grant service: list expired: %w", err)
	}

	return rows, nil
}

// Count returns the number of pending revocations.
func (s *GrantService) Count(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.PendingGrant{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("grant service: count: %w", err)
	}
	return count, nil
}

// Oldest returns the earliest grant time, with ok reporting whether any row
// exists at all.
func (s *GrantService) Oldest(ctx context.Context) (time.Time, bool, error) {
	ctx = ensureContext(ctx)

	var rows []models.PendingGrant
	err := s.db.WithContext(ctx).
		Order("granted_at asc").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return time.Time{}, false, fmt.Errorf("grant service: oldest: %w", err)
	}
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}

	return rows[0].GrantedAt, true, nil
}

// List returns up to limit rows ordered oldest first. Used by the operator
// debug command.
func (s *GrantService) List(ctx context.Context, limit int) ([]models.PendingGrant, error) {
	ctx = ensureContext(ctx)

	if limit <= 0 || limit > 100 {
		limit = 25
	}

	var rows []models.PendingGrant
	err := s.db.WithContext(ctx).
		Order("granted_at asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("grant service: list: %w", err)
	}

	return rows, nil
}

// ClearAll deletes every pending revocation and returns how many were
// removed. Reserved for the explicit operator command; automatic logic never
// calls it.
func (s *GrantService) ClearAll(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.PendingGrant{})
	if result.Error != nil {
		return 0, fmt.Errorf("grant service: clear all: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func validateKey(subjectID, scopeID, grantID int64) error {
	if subjectID <= 0 {
		return errors.New("subject id is required")
	}
	if scopeID <= 0 {
		return errors.New("scope id is required")
	}
	if grantID <= 0 {
		return errors.New("grant id is required")
	}
	return nil
}

func normalizeAttribution(attributedTo string) string {
	attributedTo = strings.TrimSpace(attributedTo)
	if attributedTo == "" {
		return UnknownAttribution
	}
	return attributedTo
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
