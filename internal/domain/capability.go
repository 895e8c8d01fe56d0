package domain

import "context"

// BridgeStore persists dedup state and message mappings. Implementations
// must commit before returning and tolerate the poll loop and the relay
// handler calling in concurrently.
type BridgeStore interface {
	// IsSeen reports whether an Instagram item was already processed.
	IsSeen(ctx context.Context, igItemID string) (bool, error)

	// MarkSeen records an item as processed. Idempotent; marking the same
	// id twice is not an error.
	MarkSeen(ctx context.Context, igItemID string) error

	// SaveMapping upserts a mapping keyed by (TGMessageID, TGChatID).
	SaveMapping(ctx context.Context, m MessageMapping) error

	// GetMapping returns the mapping for a forwarded Telegram message, or
	// (nil, nil) when the message was not bridge-forwarded.
	GetMapping(ctx context.Context, tgMessageID int, tgChatID int64) (*MessageMapping, error)

	// Stats returns row counts for startup logging and the status command.
	Stats(ctx context.Context) (seen int64, mappings int64, err error)

	Close() error
}

// ThreadSource lists recent direct-message threads.
type ThreadSource interface {
	ListRecentThreads(ctx context.Context, limit int) ([]Thread, error)

	// UserID is the bridge account's own Instagram user id, used to skip
	// self-authored messages.
	UserID() string
}

// DirectMessenger sends into an Instagram thread on behalf of the owner.
type DirectMessenger interface {
	SendText(ctx context.Context, threadID, text string) error
	SendReaction(ctx context.Context, threadID, itemID, emoji string) error
}

// ContentFetcher extracts text and media from one inbound message.
type ContentFetcher interface {
	// Fetch never fails the whole message for a single bad attachment;
	// unsupported or broken parts are skipped with a warning.
	Fetch(ctx context.Context, msg *DirectMessage) *FetchedContent

	// Cleanup removes the downloaded files. Best-effort.
	Cleanup(content *FetchedContent)
}

// Deliverer forwards fetched content to the owner chat.
type Deliverer interface {
	// Deliver returns the Telegram message id of the sent message, or 0
	// when nothing was sent. On success the mapping is already persisted.
	Deliver(ctx context.Context, sender string, content *FetchedContent, igThreadID, igItemID string) (int, error)

	// NotifyError sends a fire-and-forget diagnostic to the owner chat.
	NotifyError(text string)
}
