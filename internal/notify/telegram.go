package notify

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/fxsignal/internal/model"
	"github.com/Alias1177/fxsignal/internal/trading/risk"
)

// Telegram sends messages to one chat and turns inline button presses into
// signal decisions
type Telegram struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	handler DecisionHandler
	logger  zerolog.Logger
}

// NewTelegram authorizes the bot. Decisions are ignored until SetHandler is called.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	logger := log.With().Str("component", "telegram").Logger()
	logger.Info().Str("username", bot.Self.UserName).Msg("Authorized on Telegram")
	return &Telegram{bot: bot, chatID: chatID, logger: logger}, nil
}

// SetHandler routes confirm/reject presses to h. It must be called before Run.
func (t *Telegram) SetHandler(h DecisionHandler) {
	t.handler = h
}

// SendConfirmation sends a signal with Confirm/Reject buttons
func (t *Telegram) SendConfirmation(_ context.Context, s model.CandidateSignal, sizing risk.SizingResult) error {
	msg := tgbotapi.NewMessage(t.chatID, FormatSignal(s)+"\n"+FormatSizing(sizing))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Confirm", ConfirmData(s.ID)),
			tgbotapi.NewInlineKeyboardButtonData("Reject", RejectData(s.ID)),
		),
	)
	return t.send(msg)
}

// SendInfo sends a signal without buttons
func (t *Telegram) SendInfo(_ context.Context, s model.CandidateSignal) error {
	return t.send(tgbotapi.NewMessage(t.chatID, FormatSignal(s)))
}

// SendTradeNotification reports an executed trade
func (t *Telegram) SendTradeNotification(_ context.Context, _ model.CandidateSignal, pos model.Position) error {
	return t.send(tgbotapi.NewMessage(t.chatID, FormatTrade(pos)))
}

// SendText sends a plain message
func (t *Telegram) SendText(_ context.Context, text string) error {
	return t.send(tgbotapi.NewMessage(t.chatID, text))
}

func (t *Telegram) send(c tgbotapi.Chattable) error {
	if _, err := t.bot.Send(c); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Run polls updates until ctx is cancelled
func (t *Telegram) Run(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := t.bot.GetUpdatesChan(updateConfig)
	defer t.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.CallbackQuery != nil {
				t.handleCallback(ctx, update.CallbackQuery)
			}
		}
	}
}

func (t *Telegram) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat.ID != t.chatID {
		return
	}
	d, err := ParseCallback(cb.Data)
	if err == nil && t.handler == nil {
		err = errors.New("no decision handler")
	}
	if err != nil {
		t.logger.Warn().Err(err).Msg("Ignoring callback")
		return
	}

	if d.Confirm {
		err = t.handler.Confirm(ctx, d.SignalID)
	} else {
		err = t.handler.Reject(ctx, d.SignalID, "rejected by operator")
	}

	answer := "Done"
	if err != nil {
		answer = err.Error()
		if !errors.Is(err, context.Canceled) {
			t.logger.Warn().Err(err).Str("signal_id", d.SignalID).Bool("confirm", d.Confirm).Msg("Decision not applied")
		}
	}
	if _, err := t.bot.Request(tgbotapi.NewCallback(cb.ID, answer)); err != nil {
		t.logger.Debug().Err(err).Msg("Failed to answer callback")
	}

	// Drop the buttons so the decision cannot be pressed twice
	edit := tgbotapi.NewEditMessageReplyMarkup(t.chatID, cb.Message.MessageID, tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	if _, err := t.bot.Request(edit); err != nil {
		t.logger.Debug().Err(err).Msg("Failed to clear buttons")
	}
}
