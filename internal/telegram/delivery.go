package telegram

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"igbridge/internal/domain"
	"igbridge/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotSender is the slice of tgbotapi.BotAPI the deliverer uses.
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	SendMediaGroup(cfg tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
}

// Deliverer forwards fetched content to the owner chat with bounded
// retries and a link fallback. It implements domain.Deliverer.
type Deliverer struct {
	bot        BotSender
	store      domain.BridgeStore
	chatID     int64
	maxRetries int
	baseDelay  time.Duration
	sleep      func(time.Duration)
	logger     *slog.Logger

	forwarded *metrics.Counter
	retries   *metrics.Counter
	fallbacks *metrics.Counter
	dropped   *metrics.Counter
}

type DelivererConfig struct {
	Bot         BotSender
	Store       domain.BridgeStore
	OwnerChatID int64
	MaxRetries  int
	BaseDelay   time.Duration
	Logger      *slog.Logger
}

func NewDeliverer(cfg DelivererConfig) *Deliverer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 5 * time.Second
	}
	return &Deliverer{
		bot:        cfg.Bot,
		store:      cfg.Store,
		chatID:     cfg.OwnerChatID,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		sleep:      time.Sleep,
		logger:     cfg.Logger,
		forwarded:  metrics.Collector.Counter("bridge_forwarded_total", "Messages forwarded to Telegram"),
		retries:    metrics.Collector.Counter("bridge_send_retries_total", "Telegram send retries after network errors"),
		fallbacks:  metrics.Collector.Counter("bridge_fallbacks_total", "Link-only fallback sends after retry exhaustion"),
		dropped:    metrics.Collector.Counter("bridge_dropped_total", "Messages dropped with no fallback path"),
	}
}

// Deliver sends one message's content to the owner chat and persists the
// Telegram↔Instagram mapping before returning the message id. Network
// failures retry the whole composition with linear backoff
// (baseDelay × attempt); after exhaustion a link-only fallback is sent if
// a source URL exists, otherwise the message is dropped.
func (d *Deliverer) Deliver(ctx context.Context, sender string, content *domain.FetchedContent, igThreadID, igItemID string) (int, error) {
	if content.Empty() {
		return 0, nil
	}

	header := buildHeader(sender, content.SourceURL)

	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		msgID, err := d.sendOnce(content, header)
		if err == nil {
			if err := d.saveMapping(ctx, msgID, igThreadID, igItemID, sender); err != nil {
				return 0, err
			}
			d.forwarded.Inc()
			return msgID, nil
		}

		if !IsNetworkError(err) {
			return 0, fmt.Errorf("telegram send: %w", err)
		}

		if attempt < d.maxRetries {
			delay := d.baseDelay * time.Duration(attempt)
			d.logger.Warn("telegram network error, retrying",
				"attempt", attempt, "max", d.maxRetries, "delay", delay, "err", err,
			)
			d.retries.Inc()
			d.sleep(delay)
		} else {
			d.logger.Error("all telegram send attempts failed", "attempts", d.maxRetries, "err", err)
		}
	}

	return d.sendFallback(ctx, sender, content, igThreadID, igItemID)
}

// sendOnce performs one full composition attempt. Exactly one branch is
// taken: grouped album, single native media, or formatted text.
func (d *Deliverer) sendOnce(content *domain.FetchedContent, header string) (int, error) {
	switch {
	case len(content.Media) >= 2:
		group := make([]interface{}, 0, len(content.Media))
		for i, m := range content.Media {
			file := tgbotapi.FilePath(m.Path)
			caption := ""
			if i == 0 {
				caption = header
			}
			if m.Kind == domain.MediaPhoto {
				item := tgbotapi.NewInputMediaPhoto(file)
				item.Caption = caption
				item.ParseMode = tgbotapi.ModeHTML
				group = append(group, item)
			} else {
				item := tgbotapi.NewInputMediaVideo(file)
				item.Caption = caption
				item.ParseMode = tgbotapi.ModeHTML
				group = append(group, item)
			}
		}
		msgs, err := d.bot.SendMediaGroup(tgbotapi.MediaGroupConfig{ChatID: d.chatID, Media: group})
		if err != nil {
			return 0, err
		}
		if len(msgs) == 0 {
			return 0, fmt.Errorf("empty media group response")
		}
		return msgs[0].MessageID, nil

	case len(content.Media) == 1:
		m := content.Media[0]
		caption := header
		if m.Caption != "" {
			caption += "\n\n" + html.EscapeString(m.Caption)
		}
		file := tgbotapi.FilePath(m.Path)

		var msg tgbotapi.Message
		var err error
		switch m.Kind {
		case domain.MediaVideo:
			v := tgbotapi.NewVideo(d.chatID, file)
			v.Caption = caption
			v.ParseMode = tgbotapi.ModeHTML
			msg, err = d.bot.Send(v)
		case domain.MediaAudio:
			v := tgbotapi.NewVoice(d.chatID, file)
			v.Caption = caption
			v.ParseMode = tgbotapi.ModeHTML
			msg, err = d.bot.Send(v)
		case domain.MediaAnimation:
			v := tgbotapi.NewAnimation(d.chatID, file)
			v.Caption = caption
			v.ParseMode = tgbotapi.ModeHTML
			msg, err = d.bot.Send(v)
		default:
			p := tgbotapi.NewPhoto(d.chatID, file)
			p.Caption = caption
			p.ParseMode = tgbotapi.ModeHTML
			msg, err = d.bot.Send(p)
		}
		if err != nil {
			return 0, err
		}
		return msg.MessageID, nil

	default:
		text := header + "\n\n" + html.EscapeString(content.Text)
		firstID := 0
		for _, chunk := range splitText(text, telegramMaxMsgLen) {
			msg := tgbotapi.NewMessage(d.chatID, chunk)
			msg.ParseMode = tgbotapi.ModeHTML
			sent, err := d.bot.Send(msg)
			if err != nil {
				return 0, err
			}
			if firstID == 0 {
				firstID = sent.MessageID
			}
		}
		return firstID, nil
	}
}

// Telegram caps one message at 4096 characters.
const telegramMaxMsgLen = 4096

// splitText cuts text into chunks of at most maxLen, preferring newline
// boundaries in the second half of a chunk.
func splitText(text string, maxLen int) []string {
	var chunks []string
	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxLen {
			cutAt := strings.LastIndex(chunk[:maxLen], "\n")
			if cutAt < maxLen/2 {
				cutAt = maxLen
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// sendFallback sends the link-only degradation after retry exhaustion.
// With no source URL there is nothing left to send and the message is
// dropped.
func (d *Deliverer) sendFallback(ctx context.Context, sender string, content *domain.FetchedContent, igThreadID, igItemID string) (int, error) {
	if content.SourceURL == "" {
		d.logger.Error("no source url for fallback, dropping message", "ig_item_id", igItemID)
		d.dropped.Inc()
		return 0, nil
	}

	text := fmt.Sprintf("<b>@%s</b>\n\nCould not load media, here is the link:\n%s",
		html.EscapeString(sender), content.SourceURL)
	msg := tgbotapi.NewMessage(d.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML

	sent, err := d.bot.Send(msg)
	if err != nil {
		d.logger.Error("fallback send failed, dropping message", "ig_item_id", igItemID, "err", err)
		d.dropped.Inc()
		return 0, nil
	}

	if err := d.saveMapping(ctx, sent.MessageID, igThreadID, igItemID, sender); err != nil {
		return 0, err
	}
	d.fallbacks.Inc()
	return sent.MessageID, nil
}

func (d *Deliverer) saveMapping(ctx context.Context, msgID int, igThreadID, igItemID, sender string) error {
	err := d.store.SaveMapping(ctx, domain.MessageMapping{
		TGMessageID: msgID,
		TGChatID:    d.chatID,
		IGThreadID:  igThreadID,
		IGItemID:    igItemID,
		IGSender:    sender,
	})
	if err != nil {
		return fmt.Errorf("save mapping for message %d: %w", msgID, err)
	}
	return nil
}

// NotifyError sends a fire-and-forget diagnostic to the owner chat.
func (d *Deliverer) NotifyError(text string) {
	msg := tgbotapi.NewMessage(d.chatID, "Error: "+text)
	if _, err := d.bot.Send(msg); err != nil {
		d.logger.Warn("cannot deliver error notification", "err", err)
	}
}

// buildHeader renders the bold sender line plus, when a source URL exists,
// a "Source" hyperlink on the next line.
func buildHeader(sender, sourceURL string) string {
	header := fmt.Sprintf("<b>@%s</b>", html.EscapeString(sender))
	if sourceURL != "" {
		header += fmt.Sprintf("\n<a href=\"%s\">Source</a>", sourceURL)
	}
	return header
}
