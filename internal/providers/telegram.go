package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"tank-monitor-service/internal/config"
	"tank-monitor-service/internal/db"
	"tank-monitor-service/internal/logging"
	"tank-monitor-service/internal/models"
	"tank-monitor-service/internal/utils"
)

// telegramLimiter is the global rate limiter for Telegram messages
var telegramLimiter *rate.Limiter

// initTelegramLimiter initializes the Telegram rate limiter
func initTelegramLimiter(ratePerSecond int) {
	telegramLimiter = rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond)
}

// SendTelegram delivers a refill notice via the go-telegram/bot library.
// A global limiter keeps the service under Telegram's send quota.
func SendTelegram(ctx context.Context, alert models.Alert, device models.Device, contact db.Contact, logger *logging.Logger, cfg config.Config) error {
	// Initialize rate limiter if not set
	if telegramLimiter == nil {
		initTelegramLimiter(cfg.Telegram.RateLimit)
	}

	// Check rate limit
	if err := telegramLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}

	botToken := cfg.Telegram.BotToken
	if botToken == "" {
		return fmt.Errorf("missing bot token for distributor %s", contact.DistributorID)
	}
	if contact.TelegramChat == 0 {
		return fmt.Errorf("missing telegram chat id for distributor %s", contact.DistributorID)
	}

	// Compose message
	text := fmt.Sprintf(
		"*Refill requested: %s*\n\n"+
			"*Fill level:* %.1f%%\n"+
			"*Tank level:* %.1f cm\n"+
			"*Location:* %s\n"+
			"*Consumer:* %s\n"+
			"*Source:* %s",
		alert.DeviceID,
		alert.TankLevel,
		device.TankLevelCm,
		device.Location,
		alert.ConsumerID,
		alert.Source,
	)

	// Retry sending message
	return utils.Retry(ctx, logger, 3, time.Second, func() error {
		b, err := bot.New(botToken)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram bot for distributor %s: %w", contact.DistributorID, err)
		}

		params := &bot.SendMessageParams{
			ChatID:    contact.TelegramChat,
			Text:      text,
			ParseMode: "Markdown",
		}
		if _, err := b.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", contact.TelegramChat, err)
		}
		return nil
	})
}
