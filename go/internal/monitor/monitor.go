// Package monitor drives one countdown engine from the session store and fans
// its ticks, alerts and expiry out to viewers and the notification sink.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mcdev12/roomclock/go/internal/countdown"
	"github.com/mcdev12/roomclock/go/internal/gateway"
	"github.com/mcdev12/roomclock/go/internal/notify"
	"github.com/mcdev12/roomclock/go/internal/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Broadcaster pushes events to viewers.
type Broadcaster interface {
	Broadcast(meetingID string, event *gateway.Event)
}

// CaptureTrigger runs the expiry side effect.
type CaptureTrigger interface {
	Trigger()
}

// OffsetSource is the clock offset the engine reads on every tick.
type OffsetSource interface {
	countdown.OffsetProvider
	Changes() <-chan struct{}
}

// Config controls alerting.
type Config struct {
	ThresholdsMinutes []int
	DisplayAlerts     bool
}

// Deps are the collaborators of a Monitor.
type Deps struct {
	Store       *session.Store
	Engine      *countdown.Engine
	Offsets     OffsetSource
	Notifier    notify.Notifier
	Capture     CaptureTrigger
	Broadcaster Broadcaster
	Catalog     notify.Catalog
}

// Monitor keeps the engine in step with the session store.
type Monitor struct {
	cfg  Config
	deps Deps

	logger zerolog.Logger

	// breakoutDuration is read from engine callbacks, which run with the
	// engine locked, so it must not sit behind mu.
	breakoutDuration atomic.Bool

	mu          sync.Mutex
	initialized bool
	loading     bool
	applied     countdown.Session
}

// New creates a monitor. Nil Notifier, Capture or Broadcaster are skipped.
func New(cfg Config, deps Deps) *Monitor {
	if deps.Catalog == nil {
		deps.Catalog = notify.DefaultCatalog()
	}
	return &Monitor{
		cfg:     cfg,
		deps:    deps,
		logger:  log.With().Str("meeting_id", deps.Store.MeetingID()).Logger(),
		loading: true,
	}
}

// Run applies the current session, then follows store and offset changes
// until ctx is cancelled. The engine is torn down on return.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.deps.Engine.Teardown()

	if err := m.Apply(); err != nil {
		m.logger.Error().Err(err).Msg("failed to apply initial session")
	}

	var offsetChanges <-chan struct{}
	if m.deps.Offsets != nil {
		offsetChanges = m.deps.Offsets.Changes()
	}

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("countdown monitor stopped")
			return nil
		case <-m.deps.Store.Changes():
			if err := m.Apply(); err != nil {
				m.logger.Error().Err(err).Msg("failed to apply session update")
			}
		case <-offsetChanges:
			if err := m.deps.Engine.Resync(); err != nil {
				m.logger.Error().Err(err).Msg("failed to resync countdown after offset change")
			}
		}
	}
}

// Apply reads the store once and brings the engine in line with it.
func (m *Monitor) Apply() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, ok := m.deps.Store.Get()
	if !ok {
		m.loading = true
		if m.initialized {
			// A zero session puts the engine back to dormant.
			m.applied = countdown.Session{}
			if err := m.deps.Engine.Reinitialize(countdown.Session{}); err != nil {
				return err
			}
		}
		m.broadcast(gateway.EventTypeCountdownCalculating, gateway.CalculatingPayload{
			Message: m.deps.Catalog.Format(notify.MsgCalculatingRemaining),
		})
		return nil
	}
	m.loading = false
	m.breakoutDuration.Store(snap.BreakoutDuration)

	if !m.initialized {
		if err := m.deps.Engine.Initialize(snap.Session, m.deps.Offsets, m.cfg.ThresholdsMinutes, m.callbacks()); err != nil {
			return err
		}
		m.initialized = true
		m.applied = snap.Session
		return nil
	}

	if snap.Session == m.applied {
		return nil
	}
	if err := m.deps.Engine.Reinitialize(snap.Session); err != nil {
		return err
	}
	m.applied = snap.Session
	return nil
}

func (m *Monitor) callbacks() countdown.Callbacks {
	return countdown.Callbacks{
		OnTick:   m.onTick,
		OnAlert:  m.onAlert,
		OnExpire: m.onExpire,
	}
}

func (m *Monitor) onTick(remaining int) {
	m.broadcast(gateway.EventTypeTimerTick, gateway.TimerTickPayload{
		RemainingSec: remaining,
		Display:      gateway.HumanizeSeconds(remaining),
		IsBreakout:   m.breakoutDuration.Load(),
	})
}

func (m *Monitor) onAlert(minutes int) {
	message := m.deps.Catalog.Render(notify.AlertMessage(minutes, m.breakoutDuration.Load()))
	if m.cfg.DisplayAlerts && m.deps.Notifier != nil {
		m.deps.Notifier.Notify(message, notify.SeverityInfo, notify.ChannelRooms)
	}
	m.broadcast(gateway.EventTypeAlertRaised, gateway.AlertRaisedPayload{
		ThresholdMin: minutes,
		Message:      message,
	})
}

func (m *Monitor) onExpire() {
	if m.deps.Capture != nil {
		m.deps.Capture.Trigger()
	}
	message := m.deps.Catalog.Render(notify.WillCloseMessage(m.breakoutDuration.Load()))
	if m.deps.Notifier != nil {
		m.deps.Notifier.Notify(message, notify.SeverityInfo, notify.ChannelRooms)
	}
	m.broadcast(gateway.EventTypeTimeExpired, gateway.TimeExpiredPayload{Message: message})
}

func (m *Monitor) broadcast(eventType gateway.EventType, payload any) {
	if m.deps.Broadcaster == nil {
		return
	}
	meetingID := m.deps.Store.MeetingID()
	event, err := gateway.NewEvent(meetingID, eventType, payload)
	if err != nil {
		m.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	m.deps.Broadcaster.Broadcast(meetingID, event)
}
