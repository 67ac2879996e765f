package bot

import (
	"context"
	"time"
)

// GrantInfo is the live projection of the tracked role within a scope.
// The display name is fetched fresh from the platform and never persisted.
type GrantInfo struct {
	ID   int64
	Name string
}

// Gateway is the narrow view of the chat platform the observer and sweeper
// need. The discordgo-backed implementation lives in internal/discord;
// resolution failures are reported through the pkg/errors sentinels
// (ErrScopeNotFound, ErrSubjectNotFound, ErrGrantNotFound,
// ErrInsufficientPrivilege, ErrRemoteUnavailable).
type Gateway interface {
	// ResolveScope reports whether the guild is reachable and returns its
	// display name.
	ResolveScope(ctx context.Context, scopeID int64) (string, error)

	// ResolveSubject reports whether the member is still present in the
	// guild and returns a display name.
	ResolveSubject(ctx context.Context, scopeID, subjectID int64) (string, error)

	// ResolveGrant reports whether the role still exists in the guild.
	ResolveGrant(ctx context.Context, scopeID, grantID int64) (GrantInfo, error)

	// RevokeGrant removes the role from the member, recording reason in the
	// platform's audit trail.
	RevokeGrant(ctx context.Context, scopeID, subjectID, grantID int64, reason string) error

	// Notify sends a best-effort direct message to the subject.
	Notify(ctx context.Context, subjectID int64, message string) error

	// GrantAttribution queries the audit trail for who granted the role.
	GrantAttribution(ctx context.Context, scopeID, subjectID, grantID int64) (string, error)

	// Latency reports the current gateway heartbeat round-trip.
	Latency() time.Duration
}
