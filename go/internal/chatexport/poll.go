package chatexport

import (
	"fmt"
	"strings"
)

// Poll is the metadata of a published poll result.
type Poll struct {
	ID             string       `json:"id"`
	Question       string       `json:"question"`
	QuestionType   string       `json:"questionType"`
	Answers        []PollAnswer `json:"answers"`
	NumRespondents int          `json:"numRespondents"`
	NumResponders  int          `json:"numResponders"`
}

// PollAnswer is one option and its vote count.
type PollAnswer struct {
	ID       int    `json:"id"`
	Key      string `json:"key"`
	NumVotes int    `json:"numVotes"`
}

// ResultString renders the poll as HTML lines: the question, then one
// "key: votes | pct%" line per answer.
func (p Poll) ResultString() string {
	total := 0
	for _, a := range p.Answers {
		total += a.NumVotes
	}

	var lines []string
	if p.Question != "" {
		lines = append(lines, p.Question)
	}
	for _, a := range p.Answers {
		pct := 0
		if total > 0 {
			pct = (a.NumVotes*100 + total/2) / total
		}
		lines = append(lines, fmt.Sprintf("%s: %d | %d%%", a.Key, a.NumVotes, pct))
	}
	return strings.Join(lines, "<br/>")
}
