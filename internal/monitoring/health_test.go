package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvaluateEmptyManagerIsHealthy(t *testing.T) {
	report := NewHealthManager().Evaluate(context.Background())

	require.True(t, report.Success)
	require.Equal(t, StatusUp, report.Status)
	require.Empty(t, report.Checks)
}

func TestEvaluateAggregatesWorstStatus(t *testing.T) {
	m := NewHealthManager()
	m.Register(NewCheck("store", func(ctx context.Context) ProbeResult {
		return ProbeResult{Status: StatusUp}
	}))
	m.Register(NewCheck("gateway", func(ctx context.Context) ProbeResult {
		return ProbeResult{Status: StatusDegraded, Details: "slow heartbeat"}
	}))

	report := m.Evaluate(context.Background())
	require.False(t, report.Success)
	require.Equal(t, StatusDegraded, report.Status)
	require.Len(t, report.Checks, 2)

	m.Register(NewCheck("broken", func(ctx context.Context) ProbeResult {
		return ProbeResult{Status: StatusDown}
	}))

	report = m.Evaluate(context.Background())
	require.Equal(t, StatusDown, report.Status)
}

func TestEvaluateRecoversPanickingProbe(t *testing.T) {
	m := NewHealthManager()
	m.Register(NewCheck("flaky", func(ctx context.Context) ProbeResult {
		panic("probe exploded")
	}))

	report := m.Evaluate(context.Background())
	require.False(t, report.Success)
	require.Equal(t, StatusDown, report.Status)
	require.Len(t, report.Checks, 1)
	require.Equal(t, "flaky", report.Checks[0].Component)
	require.Equal(t, "probe exploded", report.Checks[0].Details)
}

func TestRegisterIgnoresUnnamedCheck(t *testing.T) {
	m := NewHealthManager()
	m.Register(Check{})

	report := m.Evaluate(context.Background())
	require.Empty(t, report.Checks)
}

func TestResultFromError(t *testing.T) {
	up := ResultFromError("store", nil, time.Millisecond)
	require.Equal(t, StatusUp, up.Status)

	down := ResultFromError("store", errors.New("disk gone"), time.Millisecond)
	require.Equal(t, StatusDown, down.Status)
	require.Equal(t, "disk gone", down.Details)

	degraded := ResultFromError("store", context.DeadlineExceeded, time.Millisecond)
	require.Equal(t, StatusDegraded, degraded.Status)
}
