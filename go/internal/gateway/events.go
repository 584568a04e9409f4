package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope pushed to countdown viewers.
type Event struct {
	ID        string          `json:"id"`
	MeetingID string          `json:"meeting_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType names the kind of countdown event.
type EventType string

const (
	EventTypeTimerTick            EventType = "TimerTick"
	EventTypeAlertRaised          EventType = "AlertRaised"
	EventTypeTimeExpired          EventType = "TimeExpired"
	EventTypeCountdownCalculating EventType = "CountdownCalculating"
	EventTypeCountdownState       EventType = "CountdownState"
)

// TimerTickPayload carries one displayed value.
type TimerTickPayload struct {
	RemainingSec int       `json:"remaining_sec"`
	Display      string    `json:"display"`
	IsBreakout   bool      `json:"is_breakout"`
	TickedAt     time.Time `json:"ticked_at"`
}

// AlertRaisedPayload is sent when a remaining-time threshold is crossed.
type AlertRaisedPayload struct {
	ThresholdMin int    `json:"threshold_min"`
	Message      string `json:"message"`
}

// TimeExpiredPayload is sent once when the countdown reaches zero.
type TimeExpiredPayload struct {
	Message string `json:"message"`
}

// CalculatingPayload is sent while the session is still loading.
type CalculatingPayload struct {
	Message string `json:"message"`
}

// NewEvent builds an event with a fresh ID.
func NewEvent(meetingID string, eventType EventType, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		MeetingID: meetingID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// HumanizeSeconds renders s as MM:SS, or HH:MM:SS from one hour up.
// Negative input renders as 00:00.
func HumanizeSeconds(s int) string {
	if s < 0 {
		s = 0
	}
	h, m, sec := s/3600, (s%3600)/60, s%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}
