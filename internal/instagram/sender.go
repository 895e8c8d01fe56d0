package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// HeartEmoji is the default reaction for /like.
const HeartEmoji = "❤️"

type sendResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SendText sends a plain text direct message into a thread.
func (c *Client) SendText(ctx context.Context, threadID, text string) error {
	form := url.Values{
		"client_context": {newClientContext()},
		"text":           {text},
		"thread_ids":     {fmt.Sprintf("[%s]", threadID)},
		"action":         {"send_item"},
	}
	return c.broadcast(ctx, "/api/v1/direct_v2/threads/broadcast/text/", form)
}

// SendReaction attaches an emoji reaction to a thread item.
func (c *Client) SendReaction(ctx context.Context, threadID, itemID, emoji string) error {
	if emoji == "" {
		emoji = HeartEmoji
	}
	form := url.Values{
		"client_context": {newClientContext()},
		"item_id":        {itemID},
		"reaction_type":  {"like"},
		"emoji":          {emoji},
		"thread_ids":     {fmt.Sprintf("[%s]", threadID)},
		"action":         {"send_item"},
	}
	return c.broadcast(ctx, "/api/v1/direct_v2/threads/broadcast/reaction/", form)
}

func (c *Client) broadcast(ctx context.Context, path string, form url.Values) error {
	resp, err := c.do(ctx, http.MethodPost, path, form)
	if err != nil {
		return fmt.Errorf("direct send: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("direct send: HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return fmt.Errorf("direct send: parse response: %w", err)
	}
	if sr.Status != "ok" {
		return fmt.Errorf("direct send: status %q: %s", sr.Status, sr.Message)
	}
	return nil
}
