package instagram

import (
	"strconv"

	"igbridge/internal/domain"
)

// Wire types for the private direct API (subset of the inbox payload).

type inboxResponse struct {
	Inbox struct {
		Threads []wireThread `json:"threads"`
	} `json:"inbox"`
	Status string `json:"status"`
}

type wireThread struct {
	ThreadID string       `json:"thread_id"`
	Users    []wireUser   `json:"users"`
	Items    []wireItem   `json:"items"`
}

type wireUser struct {
	PK       int64  `json:"pk"`
	Username string `json:"username"`
}

type wireItem struct {
	ItemID   string `json:"item_id"`
	UserID   int64  `json:"user_id"`
	ItemType string `json:"item_type"`
	Text     string `json:"text"`

	MediaShare *wireMedia `json:"media_share"`
	Clip       *struct {
		Clip wireMedia `json:"clip"`
	} `json:"clip"`
	StoryShare *struct {
		Media *wireMedia `json:"media"`
	} `json:"story_share"`
	VoiceMedia *struct {
		Media struct {
			Audio *struct {
				AudioSrc string `json:"audio_src"`
			} `json:"audio"`
		} `json:"media"`
	} `json:"voice_media"`
	VisualMedia *struct {
		Media *wireMedia `json:"media"`
	} `json:"visual_media"`
	Media *wireMedia `json:"media"`
	Link  *struct {
		LinkContext struct {
			LinkURL string `json:"link_url"`
		} `json:"link_context"`
	} `json:"link"`
	XMAShare *struct {
		TargetURL    string `json:"target_url"`
		VideoURL     string `json:"video_url"`
		PreviewURL   string `json:"preview_url"`
	} `json:"xma_share"`
}

type wireMedia struct {
	Code        string `json:"code"`
	MediaType   int    `json:"media_type"`
	CaptionText string `json:"caption_text"`
	Caption     *struct {
		Text string `json:"text"`
	} `json:"caption"`
	User *wireUser `json:"user"`

	ImageVersions2 *struct {
		Candidates []wireURL `json:"candidates"`
	} `json:"image_versions2"`
	VideoVersions   []wireURL `json:"video_versions"`
	CarouselMedia   []wireMedia `json:"carousel_media"`
}

type wireURL struct {
	URL string `json:"url"`
}

func (m *wireMedia) captionText() string {
	if m.CaptionText != "" {
		return m.CaptionText
	}
	if m.Caption != nil {
		return m.Caption.Text
	}
	return ""
}

func (m *wireMedia) thumbnailURL() string {
	if m.ImageVersions2 != nil && len(m.ImageVersions2.Candidates) > 0 {
		return m.ImageVersions2.Candidates[0].URL
	}
	return ""
}

func (m *wireMedia) videoURL() string {
	if len(m.VideoVersions) > 0 {
		return m.VideoVersions[0].URL
	}
	return ""
}

func (t *wireThread) toDomain() domain.Thread {
	out := domain.Thread{ID: t.ThreadID}
	for _, u := range t.Users {
		out.Users = append(out.Users, domain.ThreadUser{
			ID:       strconv.FormatInt(u.PK, 10),
			Username: u.Username,
		})
	}
	for i := range t.Items {
		out.Messages = append(out.Messages, t.Items[i].toDomain())
	}
	return out
}

// toDomain converts a raw inbox item into the closed variant model. Absent
// or malformed sub-parts simply leave their variant nil.
func (it *wireItem) toDomain() domain.DirectMessage {
	msg := domain.DirectMessage{
		ID:       it.ItemID,
		UserID:   strconv.FormatInt(it.UserID, 10),
		ItemType: it.ItemType,
		Text:     it.Text,
	}

	if it.MediaShare != nil {
		msg.MediaShare = it.MediaShare.toShared()
	}
	if it.Clip != nil {
		msg.Clip = it.Clip.Clip.toShared()
	}
	if it.StoryShare != nil && it.StoryShare.Media != nil {
		sm := it.StoryShare.Media
		story := &domain.StoryShare{
			MediaType:    sm.MediaType,
			ThumbnailURL: sm.thumbnailURL(),
			VideoURL:     sm.videoURL(),
		}
		if sm.User != nil {
			story.Username = sm.User.Username
		}
		msg.StoryShare = story
	}
	if it.VoiceMedia != nil {
		voice := &domain.VoiceMedia{}
		if a := it.VoiceMedia.Media.Audio; a != nil && a.AudioSrc != "" {
			voice.Audio = &domain.AudioSource{SourceURL: a.AudioSrc}
		}
		msg.VoiceMedia = voice
	}
	if it.VisualMedia != nil && it.VisualMedia.Media != nil {
		vm := it.VisualMedia.Media
		visual := &domain.VisualMedia{}
		for _, v := range vm.VideoVersions {
			visual.VideoURLs = append(visual.VideoURLs, v.URL)
		}
		if vm.ImageVersions2 != nil {
			for _, c := range vm.ImageVersions2.Candidates {
				visual.ImageURLs = append(visual.ImageURLs, c.URL)
			}
		}
		msg.VisualMedia = visual
	}
	if it.Media != nil {
		msg.Media = &domain.RawMedia{
			ThumbnailURL: it.Media.thumbnailURL(),
			VideoURL:     it.Media.videoURL(),
		}
	}
	if it.Link != nil && it.Link.LinkContext.LinkURL != "" {
		msg.Link = &domain.LinkAttachment{URL: it.Link.LinkContext.LinkURL}
	}
	if it.XMAShare != nil {
		msg.XMAShare = &domain.XMAShare{
			VideoURL:   it.XMAShare.VideoURL,
			PreviewURL: it.XMAShare.PreviewURL,
		}
	}

	return msg
}

func (m *wireMedia) toShared() *domain.SharedMedia {
	shared := &domain.SharedMedia{
		Code:         m.Code,
		MediaType:    m.MediaType,
		Caption:      m.captionText(),
		ThumbnailURL: m.thumbnailURL(),
		VideoURL:     m.videoURL(),
	}
	for _, res := range m.CarouselMedia {
		shared.Resources = append(shared.Resources, domain.MediaResource{
			MediaType:    res.MediaType,
			ThumbnailURL: res.thumbnailURL(),
			VideoURL:     res.videoURL(),
		})
	}
	return shared
}
