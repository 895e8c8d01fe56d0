package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"igbridge/internal/domain"
	"igbridge/internal/instagram"
	"igbridge/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// RelayBot is the slice of tgbotapi.BotAPI the relay uses.
type RelayBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Relay turns owner replies and commands in the Telegram chat into
// Instagram actions on the original thread.
type Relay struct {
	bot    RelayBot
	store  domain.BridgeStore
	ig     domain.DirectMessenger
	chatID int64
	logger *slog.Logger

	relayed *metrics.Counter
}

type RelayConfig struct {
	Bot         RelayBot
	Store       domain.BridgeStore
	Instagram   domain.DirectMessenger
	OwnerChatID int64
	Logger      *slog.Logger
}

func NewRelay(cfg RelayConfig) *Relay {
	return &Relay{
		bot:     cfg.Bot,
		store:   cfg.Store,
		ig:      cfg.Instagram,
		chatID:  cfg.OwnerChatID,
		logger:  cfg.Logger,
		relayed: metrics.Collector.Counter("bridge_relayed_total", "Replies and reactions relayed back to Instagram"),
	}
}

// Run consumes bot updates until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := r.bot.GetUpdatesChan(u)
	r.logger.Info("telegram relay started", "owner_chat_id", r.chatID)

	for {
		select {
		case <-ctx.Done():
			r.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Chat == nil {
				continue
			}
			r.HandleMessage(ctx, update.Message)
		}
	}
}

// HandleMessage dispatches a single incoming Telegram message. Messages
// from any chat other than the owner's are ignored.
func (r *Relay) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat.ID != r.chatID {
		r.logger.Warn("ignoring message from foreign chat", "chat_id", msg.Chat.ID)
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "like":
			r.handleReaction(ctx, msg, instagram.HeartEmoji)
		case "react":
			emoji := strings.TrimSpace(msg.CommandArguments())
			if emoji == "" {
				emoji = instagram.HeartEmoji
			}
			r.handleReaction(ctx, msg, emoji)
		case "status":
			r.handleStatus(ctx, msg)
		case "start", "help":
			r.reply(msg, helpText)
		default:
			r.reply(msg, "Unknown command. Try /help.")
		}
		return
	}

	if msg.ReplyToMessage != nil && msg.Text != "" {
		r.handleReply(ctx, msg)
	}
}

// handleReply sends the reply text to the Instagram thread the replied-to
// Telegram message was forwarded from.
func (r *Relay) handleReply(ctx context.Context, msg *tgbotapi.Message) {
	mapping := r.lookupMapping(ctx, msg)
	if mapping == nil {
		return
	}

	if err := r.ig.SendText(ctx, mapping.IGThreadID, msg.Text); err != nil {
		r.logger.Error("relay text failed", "ig_thread_id", mapping.IGThreadID, "err", err)
		r.reply(msg, "Failed to send")
		return
	}

	r.relayed.Inc()
	r.reply(msg, "Sent")
}

func (r *Relay) handleReaction(ctx context.Context, msg *tgbotapi.Message, emoji string) {
	if msg.ReplyToMessage == nil {
		r.reply(msg, "Use /"+msg.Command()+" as a reply to a forwarded message")
		return
	}

	mapping := r.lookupMapping(ctx, msg)
	if mapping == nil {
		return
	}

	if err := r.ig.SendReaction(ctx, mapping.IGThreadID, mapping.IGItemID, emoji); err != nil {
		r.logger.Error("relay reaction failed", "ig_thread_id", mapping.IGThreadID, "err", err)
		r.reply(msg, "Failed to send")
		return
	}

	r.relayed.Inc()
	r.reply(msg, emoji)
}

// lookupMapping resolves the replied-to Telegram message to its Instagram
// origin, replying with a user-facing error on miss or storage failure.
func (r *Relay) lookupMapping(ctx context.Context, msg *tgbotapi.Message) *domain.MessageMapping {
	if msg.ReplyToMessage == nil {
		return nil
	}

	mapping, err := r.store.GetMapping(ctx, msg.ReplyToMessage.MessageID, msg.Chat.ID)
	if err != nil {
		r.logger.Error("mapping lookup failed", "tg_message_id", msg.ReplyToMessage.MessageID, "err", err)
		r.reply(msg, "Storage error, try again")
		return nil
	}
	if mapping == nil {
		r.reply(msg, "Cannot find the original message")
		return nil
	}
	return mapping
}

func (r *Relay) handleStatus(ctx context.Context, msg *tgbotapi.Message) {
	seen, mappings, err := r.store.Stats(ctx)
	if err != nil {
		r.reply(msg, "Storage error, try again")
		return
	}
	r.reply(msg, fmt.Sprintf("Bridge is running\nSeen messages: %d\nMapped messages: %d", seen, mappings))
}

func (r *Relay) reply(msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	if _, err := r.bot.Send(out); err != nil {
		r.logger.Warn("relay reply failed", "err", err)
	}
}

const helpText = `Reply to a forwarded message to answer on Instagram.

/like - heart the original message (as a reply)
/react [emoji] - react with an emoji (as a reply)
/status - bridge statistics
/help - this message`
