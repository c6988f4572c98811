package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/seismic-alert-service/internal/domain"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

// API is the subset of *tele.Bot used for delivery.
type API interface {
	ChatByID(id int64) (*tele.Chat, error)
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier delivers alerts to Telegram chats. It implements pipeline.Notifier.
type Notifier struct {
	api     API
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. Direct messages are limited to dmRate
// per second.
func NewNotifier(api API, dmRate float64, logger *slog.Logger) *Notifier {
	burst := int(dmRate)
	if burst < 1 {
		burst = 1
	}
	return &Notifier{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(dmRate), burst),
		logger:  logger,
	}
}

var sendOptions = &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true}

// ResolveChannel checks that the bot can see the chat and that it accepts
// text messages.
func (n *Notifier) ResolveChannel(ctx context.Context, channelID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chat, err := n.api.ChatByID(channelID)
	if err != nil {
		return fmt.Errorf("%w: chat %d: %w", domain.ErrChannelUnreachable, channelID, err)
	}
	if !textCapable(chat.Type) {
		return fmt.Errorf("%w: chat %d has type %q", domain.ErrChannelUnreachable, channelID, chat.Type)
	}
	return nil
}

func (n *Notifier) SendChannel(ctx context.Context, channelID int64, alert domain.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := n.api.Send(&tele.Chat{ID: channelID}, renderChannel(alert), sendOptions); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrChannelSendFailed, err)
	}
	return nil
}

func (n *Notifier) SendDirect(ctx context.Context, subscriberID int64, alert domain.Alert) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := n.api.Send(&tele.User{ID: subscriberID}, renderDirect(alert), sendOptions); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDirectNotificationFailed, err)
	}
	return nil
}

func textCapable(t tele.ChatType) bool {
	switch t {
	case tele.ChatPrivate, tele.ChatGroup, tele.ChatSuperGroup, tele.ChatChannel, tele.ChatChannelPrivate:
		return true
	}
	return false
}

// Bot owns the long-polling connection used for commands.
type Bot struct {
	*tele.Bot
	logger *slog.Logger
}

// NewBot creates a long-polling bot. Token must be non-empty.
func NewBot(token string, logger *slog.Logger) (*Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, _ tele.Context) {
			logger.Error("telegram handler failed", "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Bot{Bot: b, logger: logger}, nil
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		b.Stop()
	}()
	b.logger.Info("telegram polling started", "username", b.Me.Username)
	b.Start()
	b.logger.Info("telegram polling stopped")
}
