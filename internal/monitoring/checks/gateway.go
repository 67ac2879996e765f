package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/charlesng35/rolewarden/internal/monitoring"
)

// degradedLatency marks the gateway probe degraded once the heartbeat
// round-trip exceeds it.
const degradedLatency = 2 * time.Second

// Gateway returns a probe reporting the chat-gateway heartbeat latency.
// A zero latency means the websocket has not completed a heartbeat yet.
func Gateway(latency func() time.Duration) monitoring.Check {
	return monitoring.NewCheck("gateway", func(ctx context.Context) monitoring.ProbeResult {
		if latency == nil {
			return monitoring.ProbeResult{
				Status:  monitoring.StatusDown,
				Details: "gateway not configured",
			}
		}

		rtt := latency()
		status := monitoring.StatusUp
		details := fmt.Sprintf("heartbeat %s", rtt.Round(time.Millisecond))

		switch {
		case rtt <= 0:
			status = monitoring.StatusDegraded
			details = "no heartbeat yet"
		case rtt > degradedLatency:
			status = monitoring.StatusDegraded
		}

		return monitoring.ProbeResult{
			Status:  status,
			Details: details,
		}
	})
}
