package telegram

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/askrelay/daemon/internal/questions"
)

const maxButtonRunes = 40

// FormatQuestionMessage renders a question set as a Markdown message.
func FormatQuestionMessage(subs []questions.SubQuestion, cwd string) string {
	project := "Unknown"
	if cwd != "" {
		project = filepath.Base(cwd)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Agent needs input*\n_Project: %s_\n", project)

	for i, sub := range subs {
		fmt.Fprintf(&b, "\n*Q%d: %s*\n", i+1, sub.Prompt)
		for j, opt := range sub.Options {
			if opt.Description != "" {
				fmt.Fprintf(&b, "  %d. %s - %s\n", j+1, opt.Label, opt.Description)
			} else {
				fmt.Fprintf(&b, "  %d. %s\n", j+1, opt.Label)
			}
		}
		if sub.MultiSelect {
			b.WriteString("  _(Multiple selections allowed)_\n")
		}
	}

	b.WriteString("\n_Reply to this message or tap a button_")
	return b.String()
}

// FormatWaitingMessage renders a free-text waiting-for-input notification.
func FormatWaitingMessage(reason string) string {
	if reason == "" {
		reason = "completed"
	}
	return fmt.Sprintf("*Agent is waiting for input*\n_Reason: %s_\n\n_Reply to this message with your response_", reason)
}

// BuildKeyboard creates one button per option across all sub-questions plus
// a terminal submit button. The current selection for each sub-question is
// marked with a checkmark; labels are prefixed with the sub-question number
// when there is more than one.
func BuildKeyboard(subs []questions.SubQuestion, selections map[int]string) *InlineKeyboardMarkup {
	markup := &InlineKeyboardMarkup{}
	multi := len(subs) > 1

	for subIdx, sub := range subs {
		for optIdx := range sub.Options {
			label := sub.OptionLabel(optIdx)

			prefix := ""
			if sel, ok := selections[subIdx]; ok && sel == label {
				prefix = "✓ "
			}
			display := prefix + label
			if multi {
				display = fmt.Sprintf("%sQ%d: %s", prefix, subIdx+1, label)
			}
			display = truncateLabel(display, maxButtonRunes)

			action := questions.Action{Kind: questions.ActionSelect, Sub: subIdx, Option: optIdx}
			markup.InlineKeyboard = append(markup.InlineKeyboard, []InlineKeyboardButton{{
				Text:         display,
				CallbackData: action.Data(),
			}})
		}
	}

	markup.InlineKeyboard = append(markup.InlineKeyboard, []InlineKeyboardButton{{
		Text:         "✅ Submit",
		CallbackData: questions.Action{Kind: questions.ActionSubmit}.Data(),
	}})

	return markup
}

// truncateLabel shortens text to fit a Telegram button.
func truncateLabel(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max-3]) + "..."
}
