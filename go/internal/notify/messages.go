package notify

import (
	"fmt"
	"strings"
)

// Message identifiers.
const (
	MsgAlertMeetingEndsUnderMinutes  = "app.meeting.alertMeetingEndsUnderMinutes"
	MsgAlertBreakoutEndsUnderMinutes = "app.meeting.alertBreakoutEndsUnderMinutes"
	MsgBreakoutWillClose             = "app.breakoutWillCloseMessage"
	MsgMeetingWillClose              = "app.meeting.meetingTimeHasEnded"
	MsgCalculatingRemaining          = "app.calculatingBreakoutTimeRemaining"
	MsgChatClear                     = "app.chat.clearPublicChatMessage"
	MsgPollResult                    = "app.chat.pollResult"
)

// Message is a translatable message: an identifier plus positional arguments
// substituted for {0}, {1}, ...
type Message struct {
	ID   string
	Args []any
}

// AlertMessage picks the "ends under N minutes" message. The singular form is
// used for exactly one minute.
func AlertMessage(minutes int, breakoutDuration bool) Message {
	id := MsgAlertMeetingEndsUnderMinutes
	if breakoutDuration {
		id = MsgAlertBreakoutEndsUnderMinutes
	}
	if minutes == 1 {
		id += "Singular"
	} else {
		id += "Plural"
	}
	return Message{ID: id, Args: []any{minutes}}
}

// WillCloseMessage is shown once the countdown expires.
func WillCloseMessage(breakoutDuration bool) Message {
	if breakoutDuration {
		return Message{ID: MsgBreakoutWillClose}
	}
	return Message{ID: MsgMeetingWillClose}
}

// Catalog maps message identifiers to templates.
type Catalog map[string]string

// DefaultCatalog returns the built-in English messages.
func DefaultCatalog() Catalog {
	return Catalog{
		MsgAlertMeetingEndsUnderMinutes + "Singular":  "Meeting is closing in one minute.",
		MsgAlertMeetingEndsUnderMinutes + "Plural":    "Meeting is closing in {0} minutes.",
		MsgAlertBreakoutEndsUnderMinutes + "Singular": "Breakout is closing in one minute.",
		MsgAlertBreakoutEndsUnderMinutes + "Plural":   "Breakout is closing in {0} minutes.",
		MsgBreakoutWillClose:                          "Time ended. Breakout room will close soon",
		MsgMeetingWillClose:                           "Time ended. Meeting will close soon",
		MsgCalculatingRemaining:                       "Calculating remaining time ...",
		MsgChatClear:                                  "The public chat history was cleared by a moderator",
		MsgPollResult:                                 "Poll results",
	}
}

// Format renders id with args. Unknown identifiers render as the identifier.
func (c Catalog) Format(id string, args ...any) string {
	tmpl, ok := c[id]
	if !ok {
		return id
	}
	if len(args) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, 2*len(args))
	for i, a := range args {
		pairs = append(pairs, fmt.Sprintf("{%d}", i), fmt.Sprint(a))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Render formats m.
func (c Catalog) Render(m Message) string {
	return c.Format(m.ID, m.Args...)
}
