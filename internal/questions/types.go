// Package questions tracks agent questions awaiting a human answer.
package questions

import (
	"fmt"
	"time"
)

// Option is one selectable answer for a sub-question.
type Option struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// SubQuestion is one prompt inside a question set.
type SubQuestion struct {
	Prompt      string   `json:"question"`
	Options     []Option `json:"options,omitempty"`
	MultiSelect bool     `json:"multiSelect,omitempty"`
}

// OptionLabel returns the label of the option at index i, substituting
// "Option <n>" for empty labels. An empty label would otherwise inject a
// blank line as the answer and render an unnamed button.
func (s SubQuestion) OptionLabel(i int) string {
	if label := s.Options[i].Label; label != "" {
		return label
	}
	return fmt.Sprintf("Option %d", i+1)
}

// PendingQuestion is a registered question set awaiting an answer.
// The store owns all instances; callers receive copies and re-fetch by ID
// or message ID rather than holding references.
type PendingQuestion struct {
	ID           string         `json:"id"`
	SessionID    string         `json:"session_id"`
	TmuxLocation string         `json:"tmux_location"`
	Cwd          string         `json:"cwd,omitempty"`
	SubQuestions []SubQuestion  `json:"questions,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Seq          uint64         `json:"seq"`
	MessageID    int64          `json:"message_id"`
	Answered     bool           `json:"answered"`
	Selections   map[int]string `json:"selections,omitempty"`

	// claimed marks an in-flight answer delivery; only the store touches it.
	claimed bool
}

// FreeText reports whether the question has no structured sub-questions and
// expects a plain typed reply.
func (q *PendingQuestion) FreeText() bool {
	return len(q.SubQuestions) == 0
}
