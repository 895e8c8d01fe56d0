package telegram

import (
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// IsNetworkError reports whether a Telegram send failure is worth
// retrying. Rate limits and server-side errors from the Bot API count as
// transient; anything else from the API (bad chat id, malformed markup,
// oversized file) is terminal.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
