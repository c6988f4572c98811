package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/seismic-alert-service/internal/domain"
	"github.com/couchcryptid/seismic-alert-service/internal/settings"
	tele "gopkg.in/telebot.v4"
)

// Command names.
const (
	CmdSubscribe   = "/quake_sub"
	CmdUnsubscribe = "/quake_unsub"
	CmdList        = "/quake_subs"
	CmdConfig      = "/quake_config"
	CmdSet         = "/quake_set"
)

const commandTimeout = 15 * time.Second

// SubscriptionManager handles subscriber commands.
type SubscriptionManager interface {
	Add(ctx context.Context, tenantID string, actor domain.Actor, target int64, city, language string) (string, error)
	Remove(ctx context.Context, tenantID string, actor domain.Actor, target int64, city string) (string, error)
	List(ctx context.Context, tenantID string, actor domain.Actor, target int64) ([]string, error)
}

// SettingsManager handles configuration commands.
type SettingsManager interface {
	Get(ctx context.Context, tenantID string) (domain.TenantConfig, error)
	SetField(ctx context.Context, tenantID string, actor domain.Actor, field, value string) (domain.TenantConfig, error)
}

// AdminLister reports the administrators of a chat.
type AdminLister interface {
	AdminsOf(chat *tele.Chat) ([]tele.ChatMember, error)
}

// Commands serves the chat command surface. Each group chat is a tenant.
type Commands struct {
	admins   AdminLister
	subs     SubscriptionManager
	settings SettingsManager
	logger   *slog.Logger
}

func NewCommands(admins AdminLister, subs SubscriptionManager, cfgs SettingsManager, logger *slog.Logger) *Commands {
	return &Commands{admins: admins, subs: subs, settings: cfgs, logger: logger}
}

// Register installs the command handlers and publishes the command menu.
func (c *Commands) Register(b *Bot) {
	b.Handle(CmdSubscribe, c.handleSubscribe)
	b.Handle(CmdUnsubscribe, c.handleUnsubscribe)
	b.Handle(CmdList, c.handleList)
	b.Handle(CmdConfig, c.handleConfig)
	b.Handle(CmdSet, c.handleSet)

	menu := []tele.Command{
		{Text: strings.TrimPrefix(CmdSubscribe, "/"), Description: "Follow a city: [user_id] <city>"},
		{Text: strings.TrimPrefix(CmdUnsubscribe, "/"), Description: "Stop following a city: [user_id] <city>"},
		{Text: strings.TrimPrefix(CmdList, "/"), Description: "List followed cities: [user_id]"},
		{Text: strings.TrimPrefix(CmdConfig, "/"), Description: "Show alert settings"},
		{Text: strings.TrimPrefix(CmdSet, "/"), Description: "Change a setting (admins): <field> <value>"},
	}
	if err := b.SetCommands(menu); err != nil {
		c.logger.Warn("publish command menu failed", "error", err)
	}
}

func (c *Commands) handleSubscribe(tc tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	tenantID, actor, err := c.identify(tc)
	if err != nil {
		return tc.Reply(replyForError(err))
	}
	target, city, err := parseTargetAndCity(messagePayload(tc), actor.ID)
	if err != nil {
		return tc.Reply("Usage: " + CmdSubscribe + " [user_id] <city>")
	}
	cfg, err := c.settings.Get(ctx, tenantID)
	if err != nil {
		c.logger.Error("load tenant config failed", "tenant_id", tenantID, "error", err)
		return tc.Reply(replyForError(err))
	}

	stored, err := c.subs.Add(ctx, tenantID, actor, target, city, cfg.RegionCode)
	if err != nil {
		return tc.Reply(replyForError(err))
	}
	return tc.Reply(fmt.Sprintf("Subscribed %s to alerts near <b>%s</b>.", subjectOf(actor, target), html.EscapeString(stored)),
		tele.ModeHTML)
}

func (c *Commands) handleUnsubscribe(tc tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	tenantID, actor, err := c.identify(tc)
	if err != nil {
		return tc.Reply(replyForError(err))
	}
	target, city, err := parseTargetAndCity(messagePayload(tc), actor.ID)
	if err != nil {
		return tc.Reply("Usage: " + CmdUnsubscribe + " [user_id] <city>")
	}

	removed, err := c.subs.Remove(ctx, tenantID, actor, target, city)
	if err != nil {
		return tc.Reply(replyForError(err))
	}
	return tc.Reply(fmt.Sprintf("Unsubscribed %s from <b>%s</b>.", subjectOf(actor, target), html.EscapeString(removed)),
		tele.ModeHTML)
}

func (c *Commands) handleList(tc tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	tenantID, actor, err := c.identify(tc)
	if err != nil {
		return tc.Reply(replyForError(err))
	}
	target, err := parseTarget(messagePayload(tc), actor.ID)
	if err != nil {
		return tc.Reply("Usage: " + CmdList + " [user_id]")
	}

	cities, err := c.subs.List(ctx, tenantID, actor, target)
	if err != nil {
		return tc.Reply(replyForError(err))
	}
	if len(cities) == 0 {
		return tc.Reply(fmt.Sprintf("No subscriptions for %s.", subjectOf(actor, target)))
	}
	return tc.Reply(fmt.Sprintf("Cities followed by %s:\n• %s", subjectOf(actor, target),
		html.EscapeString(strings.Join(cities, "\n• "))), tele.ModeHTML)
}

func (c *Commands) handleConfig(tc tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	tenantID, _, err := c.identify(tc)
	if err != nil {
		return tc.Reply(replyForError(err))
	}
	cfg, err := c.settings.Get(ctx, tenantID)
	if err != nil {
		c.logger.Error("load tenant config failed", "tenant_id", tenantID, "error", err)
		return tc.Reply(replyForError(err))
	}
	return tc.Reply(formatConfig(cfg), tele.ModeHTML)
}

func (c *Commands) handleSet(tc tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	tenantID, actor, err := c.identify(tc)
	if err != nil {
		return tc.Reply(replyForError(err))
	}
	field, value, ok := strings.Cut(strings.TrimSpace(messagePayload(tc)), " ")
	if !ok || strings.TrimSpace(value) == "" {
		return tc.Reply("Usage: " + CmdSet + " <field> <value>\nFields: " + strings.Join(settings.Fields, ", "))
	}

	cfg, err := c.settings.SetField(ctx, tenantID, actor, field, value)
	if err != nil {
		return tc.Reply(replyForError(err))
	}
	return tc.Reply("Saved.\n"+formatConfig(cfg), tele.ModeHTML)
}

// identify derives the tenant and acting subscriber from a group message.
func (c *Commands) identify(tc tele.Context) (string, domain.Actor, error) {
	chat, sender := tc.Chat(), tc.Sender()
	if chat == nil || sender == nil {
		return "", domain.Actor{}, errNotInGroup
	}
	if chat.Type != tele.ChatGroup && chat.Type != tele.ChatSuperGroup {
		return "", domain.Actor{}, errNotInGroup
	}

	actor := domain.Actor{ID: sender.ID}
	members, err := c.admins.AdminsOf(chat)
	if err != nil {
		c.logger.Warn("list chat admins failed", "chat_id", chat.ID, "error", err)
	}
	actor.IsAdmin = isAdmin(members, sender.ID)
	return tenantIDOf(chat.ID), actor, nil
}

var errNotInGroup = errors.New("command used outside a group")

func tenantIDOf(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func isAdmin(members []tele.ChatMember, userID int64) bool {
	for _, m := range members {
		if m.User != nil && m.User.ID == userID {
			return true
		}
	}
	return false
}

func messagePayload(tc tele.Context) string {
	if m := tc.Message(); m != nil {
		return m.Payload
	}
	return ""
}

// parseTargetAndCity splits "[user_id] <city>". Without a leading numeric id
// the sender is the target.
func parseTargetAndCity(payload string, sender int64) (int64, string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return 0, "", errors.New("missing city")
	}
	first, rest, _ := strings.Cut(payload, " ")
	if id, err := strconv.ParseInt(first, 10, 64); err == nil {
		rest = strings.TrimSpace(rest)
		if rest == "" {
			return 0, "", errors.New("missing city")
		}
		return id, rest, nil
	}
	return sender, payload, nil
}

// parseTarget reads an optional user id, defaulting to the sender.
func parseTarget(payload string, sender int64) (int64, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return sender, nil
	}
	return strconv.ParseInt(payload, 10, 64)
}

func subjectOf(actor domain.Actor, target int64) string {
	if actor.ID == target {
		return "you"
	}
	return "user " + strconv.FormatInt(target, 10)
}

func replyForError(err error) string {
	switch {
	case errors.Is(err, errNotInGroup):
		return "This command only works in a group chat."
	case errors.Is(err, domain.ErrNotPermitted):
		return "Only group administrators can do that."
	case errors.Is(err, domain.ErrInvalidCity):
		return "Please give a city name."
	case errors.Is(err, domain.ErrNotACity):
		return "That does not look like a city. Try the city's official name."
	case errors.Is(err, domain.ErrDuplicateSubscription):
		return "Already subscribed to that city."
	case errors.Is(err, domain.ErrSubscriptionNotFound):
		return "No such subscription."
	case errors.Is(err, domain.ErrInvalidConfigValue):
		return "Invalid value: " + strings.TrimPrefix(err.Error(), domain.ErrInvalidConfigValue.Error()+": ")
	}
	return "Something went wrong, please try again later."
}

func formatConfig(cfg domain.TenantConfig) string {
	var b strings.Builder
	b.WriteString("<b>Earthquake alert settings</b>\n")
	fmt.Fprintf(&b, "enabled: %s\n", onOff(cfg.Enabled))
	fmt.Fprintf(&b, "channel: %s\n", optional(cfg.ChannelID, func(v int64) string { return strconv.FormatInt(v, 10) }))
	fmt.Fprintf(&b, "threshold: %.1f\n", cfg.MagnitudeThreshold)
	fmt.Fprintf(&b, "ping_role: %s\n", optional(cfg.PingRole, html.EscapeString))
	fmt.Fprintf(&b, "everyone_threshold: %s\n", optional(cfg.EveryoneThreshold, func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }))
	fmt.Fprintf(&b, "feed_url: %s\n", optional(cfg.FeedURL, html.EscapeString))
	fmt.Fprintf(&b, "region: %s", html.EscapeString(cfg.RegionCode))
	return b.String()
}

func optional[T any](v *T, format func(T) string) string {
	if v == nil {
		return "not set"
	}
	return format(*v)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
