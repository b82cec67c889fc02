// Package bridge relays agent questions to Telegram and human answers back
// into the agent's tmux session.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/askrelay/daemon/internal/logging"
	"github.com/askrelay/daemon/internal/questions"
	"github.com/askrelay/daemon/internal/telegram"
)

// Channel is the outbound messaging surface. *telegram.Client satisfies it.
type Channel interface {
	SendMessage(ctx context.Context, chatID int64, text, parseMode string, markup *telegram.InlineKeyboardMarkup) (int64, error)
	Reply(ctx context.Context, chatID, replyTo int64, text string) (int64, error)
	EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, markup *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

// Injector delivers responses into a tmux pane. *tmux.Injector satisfies it.
type Injector interface {
	Inject(ctx context.Context, location string, responses []string) error
}

// Bridge owns the question lifecycle between the agent hooks, the Telegram
// chat and the tmux session.
type Bridge struct {
	store    *questions.Store
	channel  Channel
	injector Injector
	chatID   int64
	logger   *logging.Logger
}

// New creates a bridge for the authorized chat.
func New(store *questions.Store, channel Channel, injector Injector, chatID int64, logger *logging.Logger) *Bridge {
	return &Bridge{
		store:    store,
		channel:  channel,
		injector: injector,
		chatID:   chatID,
		logger:   logger,
	}
}

// RegisterQuestion formats and sends a question set to the chat and tracks
// it as pending. Returns the assigned question ID.
func (b *Bridge) RegisterQuestion(ctx context.Context, sessionID, tmuxLocation, cwd string, subs []questions.SubQuestion) (string, error) {
	text := telegram.FormatQuestionMessage(subs, cwd)
	markup := telegram.BuildKeyboard(subs, nil)

	messageID, err := b.channel.SendMessage(ctx, b.chatID, text, "Markdown", markup)
	if err != nil {
		return "", fmt.Errorf("send question message: %w", err)
	}

	id := b.store.Register(questions.PendingQuestion{
		SessionID:    sessionID,
		TmuxLocation: tmuxLocation,
		Cwd:          cwd,
		SubQuestions: subs,
		MessageID:    messageID,
	})
	return id, nil
}

// RegisterWaiting sends a free-text waiting-for-input notification and
// tracks it as a pending question with no sub-questions.
func (b *Bridge) RegisterWaiting(ctx context.Context, tmuxLocation, reason string) (string, error) {
	text := telegram.FormatWaitingMessage(reason)

	messageID, err := b.channel.SendMessage(ctx, b.chatID, text, "Markdown", nil)
	if err != nil {
		return "", fmt.Errorf("send waiting message: %w", err)
	}

	id := b.store.Register(questions.PendingQuestion{
		SessionID:    "stop",
		TmuxLocation: tmuxLocation,
		MessageID:    messageID,
	})
	return id, nil
}

// HandleMessage processes a typed reply from the authorized chat. The reply
// targets the question the message replies to, falling back to the most
// recent unanswered question, so a plain reply still lands on the one open
// question without the reply-to affordance.
func (b *Bridge) HandleMessage(ctx context.Context, msg *telegram.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	var pending *questions.PendingQuestion
	if msg.ReplyTo != nil {
		if p := b.store.GetByMessageID(msg.ReplyTo.MessageID); p != nil && !p.Answered {
			pending = p
		}
	}
	if pending == nil {
		pending = b.store.LatestUnanswered()
	}
	if pending == nil {
		b.reply(ctx, msg.MessageID, "No pending questions from the agent")
		return
	}

	if !b.store.ClaimForAnswering(pending.ID) {
		b.reply(ctx, msg.MessageID, "That question was already answered")
		return
	}

	if err := b.injector.Inject(ctx, pending.TmuxLocation, []string{text}); err != nil {
		b.store.ReleaseClaim(pending.ID)
		b.logger.Error("response injection failed",
			"question_id", pending.ID,
			"tmux_location", pending.TmuxLocation,
			"error", err,
		)
		b.reply(ctx, msg.MessageID, "Failed to send response - check tmux session")
		return
	}

	b.store.MarkAnswered(pending.ID)
	b.reply(ctx, msg.MessageID, "Response sent to the agent")
}

// HandleCallback processes an inline-button press from the authorized chat.
func (b *Bridge) HandleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	if cb.Message == nil {
		b.ack(ctx, cb.ID, "Question expired")
		return
	}

	pending := b.store.GetByMessageID(cb.Message.MessageID)
	if pending == nil {
		b.ack(ctx, cb.ID, "Question expired")
		return
	}
	if pending.Answered {
		b.ack(ctx, cb.ID, "Already answered")
		return
	}

	action, err := questions.ParseAction(cb.Data)
	if err != nil {
		b.logger.Warn("malformed callback data", "data", cb.Data)
		b.ack(ctx, cb.ID, "Unknown action")
		return
	}

	switch action.Kind {
	case questions.ActionSelect:
		b.handleSelect(ctx, cb, pending, action)
	case questions.ActionSubmit:
		b.handleSubmit(ctx, cb, pending)
	}
}

func (b *Bridge) handleSelect(ctx context.Context, cb *telegram.CallbackQuery, pending *questions.PendingQuestion, action questions.Action) {
	label, err := questions.ValidateSelection(pending, action.Sub, action.Option)
	if err != nil {
		b.ack(ctx, cb.ID, "Invalid option")
		return
	}

	b.store.RecordSelection(pending.ID, action.Sub, label)

	// Re-fetch for the keyboard refresh so the checkmark reflects every
	// selection recorded so far, not just this one.
	fresh := b.store.Get(pending.ID)
	if fresh != nil {
		markup := telegram.BuildKeyboard(fresh.SubQuestions, fresh.Selections)
		if err := b.channel.EditMessageReplyMarkup(ctx, b.chatID, cb.Message.MessageID, markup); err != nil {
			b.logger.Warn("keyboard refresh failed", "error", err)
		}
	}

	b.ack(ctx, cb.ID, "Selected: "+truncate(label, 20))
}

func (b *Bridge) handleSubmit(ctx context.Context, cb *telegram.CallbackQuery, pending *questions.PendingQuestion) {
	fresh := b.store.Get(pending.ID)
	if fresh == nil {
		b.ack(ctx, cb.ID, "Question expired")
		return
	}

	responses, err := questions.OrderedResponses(fresh)
	if errors.Is(err, questions.ErrNothingSelected) {
		b.ack(ctx, cb.ID, "Select at least one answer first")
		return
	}

	if !b.store.ClaimForAnswering(fresh.ID) {
		b.ack(ctx, cb.ID, "Already answered")
		return
	}

	if err := b.injector.Inject(ctx, fresh.TmuxLocation, responses); err != nil {
		b.store.ReleaseClaim(fresh.ID)
		b.logger.Error("answer injection failed",
			"question_id", fresh.ID,
			"tmux_location", fresh.TmuxLocation,
			"error", err,
		)
		b.ack(ctx, cb.ID, "Failed to send - check tmux")
		return
	}

	b.store.MarkAnswered(fresh.ID)
	b.ack(ctx, cb.ID, fmt.Sprintf("Sent %d response(s)!", len(responses)))

	// Strip the buttons now that the question is settled.
	if err := b.channel.EditMessageReplyMarkup(ctx, b.chatID, cb.Message.MessageID, nil); err != nil {
		b.logger.Warn("keyboard removal failed", "error", err)
	}
}

func (b *Bridge) reply(ctx context.Context, replyTo int64, text string) {
	if _, err := b.channel.Reply(ctx, b.chatID, replyTo, text); err != nil {
		b.logger.Warn("reply failed", "error", err)
	}
}

func (b *Bridge) ack(ctx context.Context, callbackID, text string) {
	if err := b.channel.AnswerCallbackQuery(ctx, callbackID, text); err != nil {
		b.logger.Warn("callback ack failed", "error", err)
	}
}

func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
