package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/askrelay/daemon/internal/logging"
)

const (
	defaultPollTimeoutSec = 60
	initialBackoff        = 2 * time.Second
	maxBackoff            = 15 * time.Second
)

// Handler receives authorized human events from the chat.
type Handler interface {
	HandleMessage(ctx context.Context, msg *Message)
	HandleCallback(ctx context.Context, cb *CallbackQuery)
}

// Listener long-polls the Bot API and dispatches events from the one
// authorized chat to a Handler. Events from any other chat are rejected
// with an "unauthorized" reply and never reach the handler.
type Listener struct {
	client      *Client
	chatID      int64
	handler     Handler
	logger      *logging.Logger
	pollTimeout int
	handlers    sync.WaitGroup
}

// NewListener creates a listener for the authorized chat.
func NewListener(client *Client, chatID int64, handler Handler, logger *logging.Logger) *Listener {
	return &Listener{
		client:      client,
		chatID:      chatID,
		handler:     handler,
		logger:      logger,
		pollTimeout: defaultPollTimeoutSec,
	}
}

// SetPollTimeout sets the long-poll timeout in seconds.
func (l *Listener) SetPollTimeout(sec int) {
	if sec > 0 {
		l.pollTimeout = sec
	}
}

// Run polls until the context is cancelled, then waits for in-flight
// handlers to finish. Poll failures back off exponentially and never stop
// the loop.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("telegram listener started", "chat_id", l.chatID)
	defer l.handlers.Wait()

	var offset int64
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			l.logger.Info("telegram listener stopped")
			return nil
		}

		updates, next, err := l.client.GetUpdates(ctx, offset, l.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("telegram listener stopped")
				return nil
			}
			l.logger.Warn("getUpdates failed", "error", err)
			if !sleepOrDone(ctx, backoff) {
				return nil
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = initialBackoff
		offset = next

		for _, upd := range updates {
			l.dispatch(ctx, upd)
		}
	}
}

// dispatch routes one update, enforcing the single-chat authorization.
// Each authorized event runs in its own goroutine so a slow injection
// (settle delays, stuck tmux call) cannot stall handling for other
// questions; the store's claim operation and the injector's per-target
// locks keep concurrent handlers safe.
func (l *Listener) dispatch(ctx context.Context, upd Update) {
	switch {
	case upd.Message != nil:
		msg := upd.Message
		if msg.Chat.ID != l.chatID {
			l.logger.Warn("unauthorized message", "chat_id", msg.Chat.ID)
			if _, err := l.client.Reply(ctx, msg.Chat.ID, msg.MessageID, "Unauthorized. This bot is private."); err != nil {
				l.logger.Warn("unauthorized reply failed", "error", err)
			}
			return
		}
		if strings.TrimSpace(msg.Text) == "" {
			return
		}
		l.handlers.Add(1)
		go func() {
			defer l.handlers.Done()
			l.handler.HandleMessage(ctx, msg)
		}()

	case upd.CallbackQuery != nil:
		cb := upd.CallbackQuery
		if cb.Message == nil || cb.Message.Chat.ID != l.chatID {
			l.logger.Warn("unauthorized callback", "callback_id", cb.ID)
			if err := l.client.AnswerCallbackQuery(ctx, cb.ID, "Unauthorized"); err != nil {
				l.logger.Warn("unauthorized callback ack failed", "error", err)
			}
			return
		}
		l.handlers.Add(1)
		go func() {
			defer l.handlers.Done()
			l.handler.HandleCallback(ctx, cb)
		}()
	}
}

// sleepOrDone waits for d and reports false if the context ended first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
