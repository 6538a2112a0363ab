package notify

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	logx "svcwatch/pkg/logx"
)

// TelegramConfig configures the send-only Telegram sink.
type TelegramConfig struct {
	Token  string
	ChatID int64
}

// TelegramSink delivers messages to a single chat. The bot never polls for
// updates; it exists only to push.
type TelegramSink struct {
	bot  *tele.Bot
	chat *tele.Chat
	log  logx.Logger
}

func NewTelegramSink(cfg TelegramConfig, log logx.Logger) (*TelegramSink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	return &TelegramSink{bot: b, chat: &tele.Chat{ID: cfg.ChatID}, log: log}, nil
}

func (t *TelegramSink) Name() string { return "telegram" }

func (t *TelegramSink) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// telebot sends are synchronous; run in a goroutine so ctx can bound them.
	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(t.chat, text)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSink writes every message to the structured log. It is always wired so
// transitions are visible even with no external channel configured.
type LogSink struct {
	log logx.Logger
}

func NewLogSink(log logx.Logger) *LogSink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogSink{log: log}
}

func (l *LogSink) Name() string { return "log" }

func (l *LogSink) Send(_ context.Context, text string) error {
	l.log.Info("service event", logx.String("message", text))
	return nil
}
