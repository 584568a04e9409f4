package monitor

import (
	"context"

	"github.com/mcdev12/roomclock/go/internal/countdown"
	"github.com/mcdev12/roomclock/go/internal/gateway"
	"github.com/mcdev12/roomclock/go/internal/notify"
)

// CountdownState implements gateway.StateProvider.
func (m *Monitor) CountdownState(_ context.Context, meetingID string) (*gateway.CountdownStateResponse, error) {
	if meetingID != m.deps.Store.MeetingID() {
		return nil, gateway.ErrUnknownMeeting
	}

	m.mu.Lock()
	loading := m.loading
	m.mu.Unlock()

	st := m.deps.Engine.State()
	breakout := m.breakoutDuration.Load()
	resp := &gateway.CountdownStateResponse{
		MeetingID:             meetingID,
		CountdownID:           st.ID,
		Phase:                 string(st.Phase),
		Loading:               loading,
		IsBreakout:            st.Session.IsBreakout,
		BreakoutDuration:      breakout,
		DurationSec:           st.Session.DurationSeconds,
		ReferenceStartedTime:  st.Session.ReferenceStartedTime,
		RemainingSec:          st.RemainingSeconds,
		Display:               gateway.HumanizeSeconds(st.RemainingSeconds),
		LastFiredThresholdSec: st.LastFiredThresholdSeconds,
	}
	if m.deps.Offsets != nil {
		resp.ClockOffsetMs = m.deps.Offsets.OffsetMs()
	}

	switch {
	case loading:
		resp.Message = m.deps.Catalog.Format(notify.MsgCalculatingRemaining)
	case st.Phase == countdown.PhaseExpired:
		resp.Message = m.deps.Catalog.Render(notify.WillCloseMessage(breakout))
	}
	return resp, nil
}
