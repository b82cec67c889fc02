// Package telegram is a minimal Telegram Bot API client covering the calls
// the daemon needs: long-poll updates, messages with inline keyboards,
// keyboard edits and callback acknowledgments.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

// Chat identifies a Telegram chat.
type Chat struct {
	ID int64 `json:"id"`
}

// Message is an incoming or sent Telegram message.
type Message struct {
	MessageID int64    `json:"message_id"`
	Chat      Chat     `json:"chat"`
	Text      string   `json:"text,omitempty"`
	ReplyTo   *Message `json:"reply_to_message,omitempty"`
}

// CallbackQuery is an inline-button activation.
type CallbackQuery struct {
	ID      string   `json:"id"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// Update is one long-poll result entry.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// InlineKeyboardButton is one tappable button.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// InlineKeyboardMarkup is the button grid attached to a message.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// Client talks to the Bot API over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the given bot token.
func NewClient(token string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		token:   token,
		http:    &http.Client{Timeout: 75 * time.Second},
	}
}

// SetBaseURL overrides the API base URL (tests point this at a local server).
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// SetHTTPClient overrides the underlying HTTP client.
func (c *Client) SetHTTPClient(h *http.Client) {
	c.http = h
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// call POSTs a JSON payload to a Bot API method and decodes the result.
func (c *Client) call(ctx context.Context, method string, payload, result any) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return fmt.Errorf("telegram %s http %d: %s", method, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return err
	}
	if !api.OK {
		if strings.TrimSpace(api.Description) == "" {
			return fmt.Errorf("telegram %s failed", method)
		}
		return fmt.Errorf("telegram %s failed: %s", method, api.Description)
	}
	if result != nil && len(api.Result) > 0 {
		return json.Unmarshal(api.Result, result)
	}
	return nil
}

type getUpdatesRequest struct {
	Offset  int64 `json:"offset,omitempty"`
	Timeout int   `json:"timeout,omitempty"`
}

// GetUpdates long-polls for updates past offset and returns them together
// with the next offset to poll from.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, int64, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", getUpdatesRequest{Offset: offset, Timeout: timeoutSec}, &updates)
	if err != nil {
		return nil, offset, err
	}
	next := offset
	for _, upd := range updates {
		if upd.UpdateID >= next {
			next = upd.UpdateID + 1
		}
	}
	return updates, next, nil
}

type sendMessageRequest struct {
	ChatID           int64                 `json:"chat_id"`
	Text             string                `json:"text"`
	ParseMode        string                `json:"parse_mode,omitempty"`
	ReplyToMessageID int64                 `json:"reply_to_message_id,omitempty"`
	ReplyMarkup      *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// SendMessage sends text to a chat, optionally with parse mode and an inline
// keyboard, and returns the sent message's ID.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text, parseMode string, markup *InlineKeyboardMarkup) (int64, error) {
	var sent Message
	err := c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   parseMode,
		ReplyMarkup: markup,
	}, &sent)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// Reply sends text as a reply to an earlier message in the chat.
func (c *Client) Reply(ctx context.Context, chatID, replyTo int64, text string) (int64, error) {
	var sent Message
	err := c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:           chatID,
		Text:             text,
		ReplyToMessageID: replyTo,
	}, &sent)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

type editMarkupRequest struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditMessageReplyMarkup replaces a message's inline keyboard. A nil markup
// removes the keyboard.
func (c *Client) EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, markup *InlineKeyboardMarkup) error {
	return c.call(ctx, "editMessageReplyMarkup", editMarkupRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		ReplyMarkup: markup,
	}, nil)
}

type answerCallbackRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
}

// AnswerCallbackQuery acknowledges a button press with a short toast.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	return c.call(ctx, "answerCallbackQuery", answerCallbackRequest{
		CallbackQueryID: callbackID,
		Text:            text,
	}, nil)
}
