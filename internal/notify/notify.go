package notify

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/skalibog/bfde/internal/config"
	"github.com/skalibog/bfde/pkg/logger"
	"go.uber.org/zap"
)

// Notifier — приемник текстовых уведомлений. Семантика
// fire-and-forget: доставка не подтверждается, ошибки только
// логируются и не влияют на торговый цикл.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// TelegramNotifier отправляет уведомления в Telegram-чат
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier создает уведомитель через Telegram Bot API
func NewTelegramNotifier(cfg config.NotifyConfig) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, err
	}

	logger.Info("Telegram-уведомитель подключен", zap.String("bot", bot.Self.UserName))

	return &TelegramNotifier{
		bot:    bot,
		chatID: cfg.TelegramChatID,
	}, nil
}

// Notify отправляет сообщение в чат
func (n *TelegramNotifier) Notify(ctx context.Context, message string) {
	msg := tgbotapi.NewMessage(n.chatID, message)
	if _, err := n.bot.Send(msg); err != nil {
		logger.Warn("Не удалось отправить Telegram-уведомление", zap.Error(err))
	}
}

// LogNotifier пишет уведомления в лог. Используется, когда
// Telegram не настроен, и в тестах.
type LogNotifier struct{}

// Notify выводит сообщение в лог
func (n *LogNotifier) Notify(ctx context.Context, message string) {
	logger.Info("Уведомление", zap.String("message", message))
}

// New выбирает реализацию по конфигурации
func New(cfg config.NotifyConfig) Notifier {
	if cfg.TelegramEnabled && cfg.TelegramToken != "" {
		notifier, err := NewTelegramNotifier(cfg)
		if err != nil {
			logger.Warn("Telegram недоступен, уведомления пойдут в лог", zap.Error(err))
			return &LogNotifier{}
		}
		return notifier
	}
	return &LogNotifier{}
}
