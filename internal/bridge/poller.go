package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"igbridge/internal/domain"
	"igbridge/internal/metrics"
)

// Poller drives the forward direction of the bridge: list recent inbox
// threads, pick out unseen messages, fetch their content and hand it to
// the deliverer. Dedup is mark-before-send, so a crash mid-delivery loses
// at most the in-flight message and never duplicates one.
type Poller struct {
	source    domain.ThreadSource
	fetcher   domain.ContentFetcher
	deliverer domain.Deliverer
	store     domain.BridgeStore

	interval    time.Duration
	threadLimit int
	perThread   int
	allowed     map[string]struct{}
	logger      *slog.Logger

	polls         *metrics.Counter
	pollFailures  *metrics.Counter
	skippedSeen   *metrics.Counter
	skippedSender *metrics.Counter
	msgFailures   *metrics.Counter
}

type PollerConfig struct {
	Source    domain.ThreadSource
	Fetcher   domain.ContentFetcher
	Deliverer domain.Deliverer
	Store     domain.BridgeStore

	Interval    time.Duration
	ThreadLimit int
	PerThread   int

	// AllowedSenders is nil to bridge everyone.
	AllowedSenders map[string]struct{}

	Logger *slog.Logger
}

func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.ThreadLimit <= 0 {
		cfg.ThreadLimit = 10
	}
	if cfg.PerThread <= 0 {
		cfg.PerThread = 5
	}
	return &Poller{
		source:        cfg.Source,
		fetcher:       cfg.Fetcher,
		deliverer:     cfg.Deliverer,
		store:         cfg.Store,
		interval:      cfg.Interval,
		threadLimit:   cfg.ThreadLimit,
		perThread:     cfg.PerThread,
		allowed:       cfg.AllowedSenders,
		logger:        cfg.Logger,
		polls:         metrics.Collector.Counter("bridge_polls_total", "Completed inbox poll passes"),
		pollFailures:  metrics.Collector.Counter("bridge_poll_failures_total", "Inbox poll passes that failed"),
		skippedSeen:   metrics.Collector.Counter("bridge_skipped_seen_total", "Messages skipped as already processed"),
		skippedSender: metrics.Collector.Counter("bridge_skipped_sender_total", "Threads skipped by the sender allow-list"),
		msgFailures:   metrics.Collector.Counter("bridge_message_failures_total", "Messages that failed processing"),
	}
}

// Run polls the inbox until the context is cancelled. Each cycle sleeps
// first, then polls; a failed pass is reported to the owner and the loop
// keeps going.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started",
		"interval", p.interval, "thread_limit", p.threadLimit, "per_thread", p.perThread,
	)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return nil
		case <-time.After(p.interval):
		}

		if err := p.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.pollFailures.Inc()
			p.logger.Error("poll pass failed", "err", err)
			p.deliverer.NotifyError(err.Error())
		}
	}
}

// PollOnce runs a single poll pass over the most recent threads.
func (p *Poller) PollOnce(ctx context.Context) error {
	threads, err := p.source.ListRecentThreads(ctx, p.threadLimit)
	if err != nil {
		return fmt.Errorf("list inbox threads: %w", err)
	}
	p.polls.Inc()

	for _, thread := range threads {
		sender := threadSender(thread)
		if !p.senderAllowed(sender) {
			p.skippedSender.Inc()
			p.logger.Debug("thread skipped by allow-list", "sender", sender)
			continue
		}

		for _, msg := range tailOldestFirst(thread.Messages, p.perThread) {
			if msg.UserID == p.source.UserID() {
				continue
			}
			if err := p.processMessage(ctx, thread.ID, sender, msg); err != nil {
				p.msgFailures.Inc()
				p.logger.Error("message processing failed",
					"ig_thread_id", thread.ID, "ig_item_id", msg.ID, "err", err,
				)
			}
			if ctx.Err() != nil {
				return nil
			}
		}
	}
	return nil
}

// processMessage forwards one inbound message. The seen mark is written
// before fetching or sending anything.
func (p *Poller) processMessage(ctx context.Context, threadID, sender string, msg domain.DirectMessage) error {
	seen, err := p.store.IsSeen(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("dedup check: %w", err)
	}
	if seen {
		p.skippedSeen.Inc()
		return nil
	}
	if err := p.store.MarkSeen(ctx, msg.ID); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}

	content := p.fetcher.Fetch(ctx, &msg)
	defer p.fetcher.Cleanup(content)

	if content.Empty() {
		p.logger.Debug("nothing to forward", "ig_item_id", msg.ID, "item_type", msg.ItemType)
		return nil
	}

	if _, err := p.deliverer.Deliver(ctx, sender, content, threadID, msg.ID); err != nil {
		return fmt.Errorf("deliver: %w", err)
	}
	return nil
}

func (p *Poller) senderAllowed(sender string) bool {
	if p.allowed == nil {
		return true
	}
	_, ok := p.allowed[sender]
	return ok
}

// threadSender names the thread by its first listed participant.
func threadSender(thread domain.Thread) string {
	if len(thread.Users) == 0 {
		return "Unknown"
	}
	return thread.Users[0].Username
}

// tailOldestFirst returns up to n of the newest messages reordered oldest
// first, so forwarding preserves conversation order.
func tailOldestFirst(msgs []domain.DirectMessage, n int) []domain.DirectMessage {
	if len(msgs) > n {
		msgs = msgs[:n]
	}
	out := make([]domain.DirectMessage, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = m
	}
	return out
}
