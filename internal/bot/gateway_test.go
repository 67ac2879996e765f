package bot

import (
	"context"
	"time"

	apperrors "github.com/charlesng35/rolewarden/pkg/errors"
)

// fakeGateway scripts the platform for observer and sweeper tests.
type fakeGateway struct {
	scopeName string
	grantName string

	missingScopes   map[int64]bool
	missingSubjects map[int64]bool
	grantMissing    bool

	revokeErrs map[int64]error // keyed by subject id
	revoked    []int64
	notified   []int64
	notifyErr  error

	attribution    string
	attributionErr error
	latency        time.Duration
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		scopeName:       "Test Guild",
		grantName:       "Trial Member",
		missingScopes:   map[int64]bool{},
		missingSubjects: map[int64]bool{},
		revokeErrs:      map[int64]error{},
	}
}

func (g *fakeGateway) ResolveScope(_ context.Context, scopeID int64) (string, error) {
	if g.missingScopes[scopeID] {
		return "", apperrors.ErrScopeNotFound
	}
	return g.scopeName, nil
}

func (g *fakeGateway) ResolveSubject(_ context.Context, _, subjectID int64) (string, error) {
	if g.missingSubjects[subjectID] {
		return "", apperrors.ErrSubjectNotFound
	}
	return "member", nil
}

func (g *fakeGateway) ResolveGrant(_ context.Context, _, grantID int64) (GrantInfo, error) {
	if g.grantMissing {
		return GrantInfo{}, apperrors.ErrGrantNotFound
	}
	return GrantInfo{ID: grantID, Name: g.grantName}, nil
}

func (g *fakeGateway) RevokeGrant(_ context.Context, _, subjectID, _ int64, _ string) error {
	if err := g.revokeErrs[subjectID]; err != nil {
		return err
	}
	g.revoked = append(g.revoked, subjectID)
	return nil
}

func (g *fakeGateway) Notify(_ context.Context, subjectID int64, _ string) error {
	if g.notifyErr != nil {
		return g.notifyErr
	}
	g.notified = append(g.notified, subjectID)
	return nil
}

func (g *fakeGateway) GrantAttribution(_ context.Context, _, _, _ int64) (string, error) {
	return g.attribution, g.attributionErr
}

func (g *fakeGateway) Latency() time.Duration {
	return g.latency
}
