package domain

import "time"

// MediaKind classifies a downloaded media file for Telegram delivery.
type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaAudio     MediaKind = "audio"
	MediaAnimation MediaKind = "animation"
)

// Instagram post media types as reported by the private API.
const (
	IGMediaPhoto    = 1
	IGMediaVideo    = 2
	IGMediaCarousel = 8
)

// Thread is a direct-message thread as returned by the inbox listing.
// Messages are ordered newest first, matching the API.
type Thread struct {
	ID       string
	Users    []ThreadUser
	Messages []DirectMessage
}

type ThreadUser struct {
	ID       string
	Username string
}

// DirectMessage is one inbox item. Attachment kinds are modeled as a closed
// set of optional variants; a nil variant means that kind is not present.
// Kinds are not mutually exclusive and are all processed when set.
type DirectMessage struct {
	ID       string
	UserID   string
	ItemType string
	Text     string

	MediaShare  *SharedMedia
	Clip        *SharedMedia
	StoryShare  *StoryShare
	VoiceMedia  *VoiceMedia
	VisualMedia *VisualMedia
	Media       *RawMedia
	Link        *LinkAttachment
	XMAShare    *XMAShare
}

// SharedMedia is a shared post or reel (media_share / clip).
type SharedMedia struct {
	Code         string
	MediaType    int
	Caption      string
	ThumbnailURL string
	VideoURL     string
	Resources    []MediaResource
}

// MediaResource is one item of a carousel post.
type MediaResource struct {
	MediaType    int
	ThumbnailURL string
	VideoURL     string
}

// StoryShare is a shared story.
type StoryShare struct {
	Username     string
	MediaType    int
	ThumbnailURL string
	VideoURL     string
}

// VoiceMedia is a voice note. The audio payload is optional on the wire,
// so extraction stays best-effort.
type VoiceMedia struct {
	Audio *AudioSource
}

type AudioSource struct {
	SourceURL string
}

// VisualMedia is an ephemeral photo/video message ("circle").
type VisualMedia struct {
	VideoURLs []string
	ImageURLs []string
}

// RawMedia is a photo/video attached directly to the message.
type RawMedia struct {
	ThumbnailURL string
	VideoURL     string
}

type LinkAttachment struct {
	URL string
}

// XMAShare is an externally-hosted shared card (reels etc.).
type XMAShare struct {
	VideoURL   string
	PreviewURL string
}

// MediaFile is a downloaded attachment waiting for delivery. The file at
// Path is owned by the fetcher and removed via Cleanup once delivery is
// resolved.
type MediaFile struct {
	Path    string
	Kind    MediaKind
	Caption string
}

// FetchedContent is the ephemeral result of fetching one message.
type FetchedContent struct {
	Text      string
	Media     []MediaFile
	SourceURL string
}

// Empty reports whether there is nothing to forward.
func (c *FetchedContent) Empty() bool {
	return c == nil || (c.Text == "" && len(c.Media) == 0)
}

// MessageMapping links a forwarded Telegram message back to its Instagram
// source. (TGMessageID, TGChatID) is the natural key; rows are never
// mutated or deleted so reply routing keeps working indefinitely.
type MessageMapping struct {
	TGMessageID int
	TGChatID    int64
	IGThreadID  string
	IGItemID    string
	IGSender    string
	CreatedAt   time.Time
}
