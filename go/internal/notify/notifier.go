// Package notify delivers user-facing notifications and the expiry side effect
// over NATS. Delivery is fire-and-forget: publish failures are logged and never
// reach the caller.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Severities and channels used by the countdown.
const (
	SeverityInfo = "info"
	ChannelRooms = "rooms"
)

// Notifier is the notification sink.
type Notifier interface {
	Notify(message, severity, channel string)
}

// Publisher is the subset of *nats.Conn used here.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Notification is the JSON body published for every notification.
type Notification struct {
	MeetingID string    `json:"meetingId"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Channel   string    `json:"channel"`
	SentAt    time.Time `json:"sentAt"`
}

// NATSNotifier publishes notifications on <prefix>.<channel>.
type NATSNotifier struct {
	pub       Publisher
	prefix    string
	meetingID string
	clock     clockwork.Clock
}

// NewNATSNotifier creates a notifier for one meeting.
func NewNATSNotifier(pub Publisher, prefix, meetingID string, clock clockwork.Clock) *NATSNotifier {
	return &NATSNotifier{pub: pub, prefix: prefix, meetingID: meetingID, clock: clock}
}

// Notify implements Notifier.
func (n *NATSNotifier) Notify(message, severity, channel string) {
	subject := fmt.Sprintf("%s.%s", n.prefix, channel)
	body, err := json.Marshal(Notification{
		MeetingID: n.meetingID,
		Message:   message,
		Severity:  severity,
		Channel:   channel,
		SentAt:    n.clock.Now().UTC(),
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal notification")
		return
	}
	if err := n.pub.Publish(subject, body); err != nil {
		log.Error().
			Err(err).
			Str("subject", subject).
			Str("meeting_id", n.meetingID).
			Msg("failed to publish notification")
		return
	}
	log.Debug().
		Str("subject", subject).
		Str("severity", severity).
		Msg("notification published")
}

// CaptureRequest asks the recording side to start uploading captured content.
type CaptureRequest struct {
	MeetingID   string    `json:"meetingId"`
	RequestedAt time.Time `json:"requestedAt"`
}

// CaptureTrigger publishes the captured-content upload request that runs when
// a countdown expires.
type CaptureTrigger struct {
	pub       Publisher
	subject   string
	meetingID string
	clock     clockwork.Clock
}

// NewCaptureTrigger creates a trigger publishing on subject.
func NewCaptureTrigger(pub Publisher, subject, meetingID string, clock clockwork.Clock) *CaptureTrigger {
	return &CaptureTrigger{pub: pub, subject: subject, meetingID: meetingID, clock: clock}
}

// Trigger publishes the request. Errors are logged.
func (c *CaptureTrigger) Trigger() {
	body, err := json.Marshal(CaptureRequest{MeetingID: c.meetingID, RequestedAt: c.clock.Now().UTC()})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal capture request")
		return
	}
	if err := c.pub.Publish(c.subject, body); err != nil {
		log.Error().
			Err(err).
			Str("subject", c.subject).
			Str("meeting_id", c.meetingID).
			Msg("failed to publish capture request")
		return
	}
	log.Info().Str("meeting_id", c.meetingID).Msg("captured content upload requested")
}
