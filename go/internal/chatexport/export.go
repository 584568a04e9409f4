// Package chatexport renders a public chat history as plain text.
package chatexport

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Message types.
const (
	TypeText      = "default"
	TypeChatClear = "publicChatHistoryCleared"
	TypePoll      = "poll"
)

// Message identifiers looked up through the Translator.
const (
	MsgChatClear  = "app.chat.clearPublicChatMessage"
	MsgPollResult = "app.chat.pollResult"
)

// Translator renders message identifiers.
type Translator interface {
	Format(id string, args ...any) string
}

// User is the author of a chat message.
type User struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// Message is one chat entry. Metadata holds the poll JSON for poll entries.
type Message struct {
	CreatedAt   time.Time `json:"createdAt"`
	User        *User     `json:"user,omitempty"`
	MessageType string    `json:"messageType"`
	Message     string    `json:"message"`
	Metadata    string    `json:"messageMetadata,omitempty"`
}

// Welcome holds the meeting's welcome messages.
type Welcome struct {
	WelcomeMsg              string  `json:"welcomeMsg"`
	WelcomeMsgForModerators *string `json:"welcomeMsgForModerators,omitempty"`
}

// Export renders messages one per line as "[HH:MM] [name : role]: text",
// preceded by the welcome messages when there are any. Times are printed in
// the location each CreatedAt carries.
func Export(messages []Message, welcome Welcome, tr Translator) (string, error) {
	var b strings.Builder

	welcomeMsg := HTMLDecode(welcome.WelcomeMsg)
	if welcomeMsg != "" {
		modMsg := ""
		if welcome.WelcomeMsgForModerators != nil {
			modMsg = HTMLDecode(*welcome.WelcomeMsgForModerators)
		}
		b.WriteString("system: " + welcomeMsg)
		b.WriteString("\n ")
		if modMsg != "" {
			b.WriteString("system: " + modMsg)
		}
		b.WriteString("\n")
	}

	for i, m := range messages {
		userName := ""
		if m.User != nil {
			userName = fmt.Sprintf("[%s : %s]: ", m.User.Name, m.User.Role)
		}

		var text string
		switch m.MessageType {
		case TypeChatClear:
			text = tr.Format(MsgChatClear)
		case TypePoll:
			userName = tr.Format(MsgPollResult) + ":\n"
			var poll Poll
			if err := json.Unmarshal([]byte(m.Metadata), &poll); err != nil {
				return "", fmt.Errorf("message %d: unmarshal poll metadata: %w", i, err)
			}
			text = HTMLDecode(poll.ResultString())
		default:
			text = HTMLDecode(m.Message)
		}

		fmt.Fprintf(&b, "[%s] %s%s\n", m.CreatedAt.Format("15:04"), userName, text)
	}
	return b.String(), nil
}

// DateString formats t as YYYY-MM-DD_HH-MM for export file names.
func DateString(t time.Time) string {
	return t.Format("2006-01-02_15-04")
}

// HTMLDecode turns chat HTML into plain text: <br/> becomes a newline, tags
// are dropped and entities are unescaped.
func HTMLDecode(input string) string {
	input = strings.ReplaceAll(input, "<br/>", "\n")

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(input))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}
