package instagram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"igbridge/internal/domain"

	"github.com/google/uuid"
)

const maxCaptionLen = 200

// Fetcher extracts text and downloads media attachments from inbound
// messages into transient files under tempDir. It owns those files until
// Cleanup is called.
type Fetcher struct {
	http      *http.Client
	tempDir   string
	timeout   time.Duration
	maxBytes  int64
	userAgent string
	logger    *slog.Logger
}

type FetcherConfig struct {
	TempDir       string
	Timeout       time.Duration
	MaxFileSizeMB int
	UserAgent     string
	Logger        *slog.Logger
}

func NewFetcher(cfg FetcherConfig) (*Fetcher, error) {
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create temp directory %s: %w", cfg.TempDir, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	maxBytes := int64(cfg.MaxFileSizeMB) * 1 << 20
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &Fetcher{
		http:      &http.Client{Timeout: cfg.Timeout},
		tempDir:   cfg.TempDir,
		timeout:   cfg.Timeout,
		maxBytes:  maxBytes,
		userAgent: cfg.UserAgent,
		logger:    cfg.Logger,
	}, nil
}

// Fetch builds the forwardable content for one message. A broken or
// unsupported attachment never fails the whole message; it is skipped with
// a warning.
func (f *Fetcher) Fetch(ctx context.Context, msg *domain.DirectMessage) *domain.FetchedContent {
	content := &domain.FetchedContent{}

	if msg.Text != "" {
		content.Text = msg.Text
	}

	if msg.MediaShare != nil {
		f.fetchShared(ctx, msg.MediaShare, content)
	}
	if msg.Clip != nil {
		f.fetchShared(ctx, msg.Clip, content)
	}
	if msg.StoryShare != nil {
		f.fetchStory(ctx, msg.StoryShare, content)
	}
	if msg.VoiceMedia != nil {
		f.fetchVoice(ctx, msg.VoiceMedia, content)
	}
	if msg.VisualMedia != nil {
		f.fetchVisual(ctx, msg.VisualMedia, content)
	}
	if msg.Media != nil {
		f.fetchRaw(ctx, msg.Media, content)
	}
	if msg.Link != nil && msg.Link.URL != "" {
		if content.Text != "" {
			content.Text += "\n"
		}
		content.Text += msg.Link.URL
	}
	if msg.XMAShare != nil {
		f.fetchXMA(ctx, msg.XMAShare, content)
	}

	return content
}

// fetchShared handles a shared post or reel: single photo, single video,
// or a carousel expanded item by item with the caption only on the first.
func (f *Fetcher) fetchShared(ctx context.Context, media *domain.SharedMedia, content *domain.FetchedContent) {
	if media.Code != "" {
		content.SourceURL = "https://instagram.com/p/" + media.Code + "/"
	}
	caption := truncate(media.Caption, maxCaptionLen)

	switch media.MediaType {
	case domain.IGMediaPhoto:
		if path, ok := f.download(ctx, media.ThumbnailURL, "jpg"); ok {
			content.Media = append(content.Media, domain.MediaFile{Path: path, Kind: domain.MediaPhoto, Caption: caption})
		}
	case domain.IGMediaVideo:
		if path, ok := f.download(ctx, media.VideoURL, "mp4"); ok {
			content.Media = append(content.Media, domain.MediaFile{Path: path, Kind: domain.MediaVideo, Caption: caption})
		}
	case domain.IGMediaCarousel:
		for i, res := range media.Resources {
			itemCaption := ""
			if i == 0 {
				itemCaption = caption
			}
			switch res.MediaType {
			case domain.IGMediaPhoto:
				if path, ok := f.download(ctx, res.ThumbnailURL, "jpg"); ok {
					content.Media = append(content.Media, domain.MediaFile{Path: path, Kind: domain.MediaPhoto, Caption: itemCaption})
				}
			case domain.IGMediaVideo:
				if path, ok := f.download(ctx, res.VideoURL, "mp4"); ok {
					content.Media = append(content.Media, domain.MediaFile{Path: path, Kind: domain.MediaVideo, Caption: itemCaption})
				}
			default:
				f.logger.Warn("unsupported carousel item type", "media_type", res.MediaType)
			}
		}
	default:
		f.logger.Warn("unsupported shared media type", "media_type", media.MediaType)
	}
}

func (f *Fetcher) fetchStory(ctx context.Context, story *domain.StoryShare, content *domain.FetchedContent) {
	username := story.Username
	if username == "" {
		username = "unknown"
	}
	caption := "Story from @" + username

	switch story.MediaType {
	case domain.IGMediaPhoto:
		if path, ok := f.download(ctx, story.ThumbnailURL, "jpg"); ok {
			content.Media = append(content.Media, domain.MediaFile{Path: path, Kind: domain.MediaPhoto, Caption: caption})
		}
	case domain.IGMediaVideo:
		if path, ok := f.download(ctx, story.VideoURL, "mp4"); ok {
			content.Media = append(content.Media, domain.MediaFile{Path: path, Kind: domain.MediaVideo, Caption: caption})
		}
	}
}

// fetchVoice is best-effort: a voice note with no extractable audio source
// degrades to nothing, not a fetch failure.
func (f *Fetcher) fetchVoice(ctx context.Context, voice *domain.VoiceMedia, content *domain.FetchedContent) {
	if voice.Audio == nil || voice.Audio.SourceURL == "" {
		f.logger.Warn("voice message without audio source, skipping")
		return
	}
	if path, ok := f.download(ctx, voice.Audio.SourceURL, "mp3"); ok {
		content.Media = append(content.Media, domain.MediaFile{Path: path, Kind: domain.MediaAudio, Caption: "Voice message"})
	}
}

// fetchVisual prefers the first video version, else the first image
// candidate.
func (f *Fetcher) fetchVisual(ctx context.Context, vm *domain.VisualMedia, content *domain.FetchedContent) {
	if len(vm.VideoURLs) > 0 {
		if path, ok := f.download(ctx, vm.VideoURLs[0], "mp4"); ok {
			content.Media = append(content.Media, domain.MediaFile{Path: path, Kind: domain.MediaVideo, Caption: "Video message"})
		}
		return
	}
	if len(vm.ImageURLs) > 0 {
		if path, ok := f.download(ctx, vm.ImageURLs[0], "jpg"); ok {
			content.Media = append(content.Media, domain.MediaFile{Path: path, Kind: domain.MediaPhoto})
		}
	}
}

func (f *Fetcher) fetchRaw(ctx context.Context, media *domain.RawMedia, content *domain.FetchedContent) {
	if media.VideoURL != "" {
		if path, ok := f.download(ctx, media.VideoURL, "mp4"); ok {
			content.Media = append(content.Media, domain.MediaFile{Path: path, Kind: domain.MediaVideo})
		}
		return
	}
	if media.ThumbnailURL != "" {
		if path, ok := f.download(ctx, media.ThumbnailURL, "jpg"); ok {
			content.Media = append(content.Media, domain.MediaFile{Path: path, Kind: domain.MediaPhoto})
		}
	}
}

// fetchXMA prefers the card's video, else its preview image.
func (f *Fetcher) fetchXMA(ctx context.Context, xma *domain.XMAShare, content *domain.FetchedContent) {
	if xma.VideoURL != "" {
		if path, ok := f.download(ctx, xma.VideoURL, "mp4"); ok {
			content.Media = append(content.Media, domain.MediaFile{Path: path, Kind: domain.MediaVideo})
		}
		return
	}
	if xma.PreviewURL != "" {
		if path, ok := f.download(ctx, xma.PreviewURL, "jpg"); ok {
			content.Media = append(content.Media, domain.MediaFile{Path: path, Kind: domain.MediaPhoto})
		}
	}
}

// download fetches url into a transient file and returns its path. Any
// failure (empty url, HTTP status, timeout, size cap, I/O) logs and
// returns not-ok; it never propagates.
func (f *Fetcher) download(ctx context.Context, rawURL, ext string) (string, bool) {
	if rawURL == "" {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		f.logger.Error("download failed", "url", truncate(rawURL, 50), "err", err)
		return "", false
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.http.Do(req)
	if err != nil {
		f.logger.Error("download failed", "url", truncate(rawURL, 50), "err", err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Error("download failed", "url", truncate(rawURL, 50), "status", resp.StatusCode)
		return "", false
	}

	path := filepath.Join(f.tempDir, uuid.NewString()+"."+ext)
	file, err := os.Create(path)
	if err != nil {
		f.logger.Error("cannot create temp file", "path", path, "err", err)
		return "", false
	}

	written, err := io.Copy(file, io.LimitReader(resp.Body, f.maxBytes+1))
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > f.maxBytes {
		err = fmt.Errorf("file exceeds %d bytes", f.maxBytes)
	}
	if err != nil {
		f.logger.Error("download failed", "url", truncate(rawURL, 50), "err", err)
		os.Remove(path)
		return "", false
	}

	return path, true
}

// Cleanup removes every downloaded file. Best-effort; a file that is
// already gone is fine.
func (f *Fetcher) Cleanup(content *domain.FetchedContent) {
	if content == nil {
		return
	}
	for _, m := range content.Media {
		if err := os.Remove(m.Path); err != nil && !os.IsNotExist(err) {
			f.logger.Debug("cleanup failed", "path", m.Path, "err", err)
		}
	}
}
