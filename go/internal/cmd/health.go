package main

import (
	"context"

	"github.com/mcdev12/roomclock/go/internal/countdown"
	"github.com/mcdev12/roomclock/go/internal/gateway"
	"github.com/mcdev12/roomclock/go/internal/timesync"
	"github.com/nats-io/nats.go"
)

// healthChecker reports NATS connectivity, clock sync and the countdown phase.
// An unsynced clock is reported but does not make the process unhealthy.
type healthChecker struct {
	nc      *nats.Conn
	tracker *timesync.Tracker
	engine  *countdown.Engine
}

func (h *healthChecker) Check(_ context.Context) gateway.HealthStatus {
	status := gateway.HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	status.NATSConnected = h.nc.IsConnected()
	if !status.NATSConnected {
		status.Healthy = false
		status.Errors = append(status.Errors, "NATS disconnected")
	}

	status.ClockSynced = h.tracker.Synced()
	status.ClockOffsetMs = h.tracker.OffsetMs()
	if !status.ClockSynced {
		status.Errors = append(status.Errors, "clock not synced yet")
	}

	st := h.engine.State()
	status.CountdownPhase = string(st.Phase)
	if st.Phase == countdown.PhaseStopped {
		status.Errors = append(status.Errors, "countdown stopped")
	}
	return status
}
