package transport

import (
	"context"
	"strconv"

	"github.com/Hom4ikTop4ik/PO-ChatBots/internal/driver"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"
)

// Driver is the subset of *driver.Driver the Telegram adapter needs,
// narrowed so this package doesn't import the concrete type beyond what
// Transport already requires.
type Driver interface {
	Start(ctx context.Context, userKey string, initMeta map[string]any) error
	Resume(ctx context.Context, userKey string, input string) error
	Status(ctx context.Context, userKey string) (active bool, exists bool, err error)
}

// Telegram is the long-polling chat-platform adapter: /start begins a
// dialog, plain text and callback-query selections resume it. It implements
// driver.Transport with the canonical dispatch-and-return-wait style — ask_text
// and ask_choice just send and return, the reply arrives later as an update
// routed back through Resume.
type Telegram struct {
	bot    *bot.Bot
	driver Driver
}

// NewTelegram builds the adapter and registers its handlers. Call Run to
// start long-polling.
func NewTelegram(token string, d Driver) (*Telegram, error) {
	t := &Telegram{driver: d}

	b, err := bot.New(token,
		bot.WithDefaultHandler(t.handleUpdate),
	)
	if err != nil {
		return nil, err
	}
	t.bot = b
	return t, nil
}

// Run starts long-polling; it blocks until ctx is cancelled.
func (t *Telegram) Run(ctx context.Context) {
	t.bot.Start(ctx)
}

func (t *Telegram) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	switch {
	case update.CallbackQuery != nil:
		t.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		t.handleMessage(ctx, update.Message)
	}
}

func (t *Telegram) handleMessage(ctx context.Context, msg *models.Message) {
	if msg.From == nil {
		return
	}
	userKey := userKeyFor(msg.From.ID)

	if msg.Text == "/start" {
		initMeta := map[string]any{
			"user_id":    msg.From.ID,
			"username":   msg.From.Username,
			"first_name": msg.From.FirstName,
		}
		if err := t.driver.Start(ctx, userKey, initMeta); err != nil {
			log.Error().Err(err).Str("user_key", userKey).Msg("telegram: start dialog failed")
		}
		return
	}

	active, exists, err := t.driver.Status(ctx, userKey)
	if err != nil {
		log.Error().Err(err).Str("user_key", userKey).Msg("telegram: status lookup failed")
		return
	}
	if !exists || !active {
		t.send(ctx, msg.Chat.ID, "Напишите /start чтобы начать")
		return
	}

	if err := t.driver.Resume(ctx, userKey, msg.Text); err != nil {
		log.Error().Err(err).Str("user_key", userKey).Msg("telegram: resume dialog failed")
	}
}

func (t *Telegram) handleCallback(ctx context.Context, cb *models.CallbackQuery) {
	userKey := userKeyFor(cb.From.ID)

	active, exists, err := t.driver.Status(ctx, userKey)
	if err != nil {
		log.Error().Err(err).Str("user_key", userKey).Msg("telegram: status lookup failed")
		return
	}
	if !exists || !active {
		t.answerCallback(ctx, cb.ID, "Сессия не активна. Напишите /start")
		return
	}

	if err := t.driver.Resume(ctx, userKey, cb.Data); err != nil {
		log.Error().Err(err).Str("user_key", userKey).Msg("telegram: resume dialog failed")
	}
	t.answerCallback(ctx, cb.ID, "")
}

// Send implements driver.Transport.
func (t *Telegram) Send(ctx context.Context, userKey, text string) error {
	chatID, err := chatIDFor(userKey)
	if err != nil {
		return err
	}
	return t.send(ctx, chatID, text)
}

// AskText implements driver.Transport: the prompt is just a Send, the
// answer arrives later via handleMessage → Resume.
func (t *Telegram) AskText(ctx context.Context, userKey, prompt string) error {
	return t.Send(ctx, userKey, prompt)
}

// AskChoice implements driver.Transport, rendering options as one inline
// keyboard button per row, per spec §6's outbound shape (id/label only).
func (t *Telegram) AskChoice(ctx context.Context, userKey, prompt string, options []driver.ChoiceOption) error {
	chatID, err := chatIDFor(userKey)
	if err != nil {
		return err
	}

	rows := make([][]models.InlineKeyboardButton, len(options))
	for i, o := range options {
		rows[i] = []models.InlineKeyboardButton{{Text: o.Label, CallbackData: o.ID}}
	}

	_, err = t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   prompt,
		ReplyMarkup: &models.InlineKeyboardMarkup{
			InlineKeyboard: rows,
		},
	})
	return err
}

func (t *Telegram) send(ctx context.Context, chatID int64, text string) error {
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	return err
}

func (t *Telegram) answerCallback(ctx context.Context, callbackID, text string) {
	_, err := t.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		log.Warn().Err(err).Msg("telegram: answer callback query failed")
	}
}

// userKeyFor maps a Telegram chat id to the driver's platform-agnostic user
// key: "telegram:<id>", so the same state store can hold sessions from
// multiple platforms without collision.
func userKeyFor(chatID int64) string {
	return "telegram:" + strconv.FormatInt(chatID, 10)
}

func chatIDFor(userKey string) (int64, error) {
	id := userKey[len("telegram:"):]
	return strconv.ParseInt(id, 10, 64)
}
