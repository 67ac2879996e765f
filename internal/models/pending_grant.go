package models

import "time"

// PendingGrant is a role grant awaiting automatic revocation. One row exists
// per (subject, scope, grant) triple; a repeated grant replaces the row and
// restarts the expiry clock.
type PendingGrant struct {
	SubjectID int64     `gorm:"primaryKey;autoIncrement:false" json:"subject_id"`
	ScopeID   int64     `gorm:"primaryKey;autoIncrement:false" json:"scope_id"`
	GrantID   int64     `gorm:"primaryKey;autoIncrement:false" json:"grant_id"`
	GrantedAt time.Time `gorm:"not null;index" json:"granted_at"`
	GrantedBy string    `gorm:"not null;default:unknown" json:"granted_by"`
}
