package messaging

import (
	"context"
	"fmt"
	"time"
)

// RoundTripper is implemented by clients able to measure broker latency.
type RoundTripper interface {
	RTT() (time.Duration, error)
}

// HealthStatus represents the health state of a messaging connection.
type HealthStatus struct {
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
}

// CheckClientHealth reports whether client is connected and, when the client
// supports it, the round-trip latency to the broker.
func CheckClientHealth(ctx context.Context, client Client) HealthStatus {
	status := HealthStatus{}

	if client == nil {
		status.Error = "client is nil"
		return status
	}
	if err := ctx.Err(); err != nil {
		status.Error = err.Error()
		return status
	}

	status.Connected = client.IsConnected()
	if !status.Connected {
		status.Error = "not connected to message broker"
		return status
	}

	if rt, ok := client.(RoundTripper); ok {
		rtt, err := rt.RTT()
		if err != nil {
			status.Error = fmt.Sprintf("health check failed: %v", err)
			return status
		}
		status.Latency = rtt
	}

	return status
}
