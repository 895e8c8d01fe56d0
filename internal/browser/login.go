// Package browser implements an interactive Chrome login for Instagram.
// It is the escape hatch when password login is blocked by a checkpoint:
// the user logs in by hand and the bridge captures the session cookies.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"igbridge/internal/instagram"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

const loginURL = "https://www.instagram.com/accounts/login/"

// Login opens a visible Chrome window on the Instagram login page, waits
// for the user to complete the login (including any 2FA or checkpoint
// challenge), then writes the captured session to sessionPath.
func Login(ctx context.Context, profileDir, sessionPath string, logger *slog.Logger) error {
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return fmt.Errorf("cannot create profile dir %s: %w", profileDir, err)
	}

	// Force visible browser for login
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		chromedp.Flag("headless", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	if err := chromedp.Run(taskCtx, chromedp.Navigate(loginURL)); err != nil {
		return fmt.Errorf("navigate to login page: %w", err)
	}

	logger.Info("browser opened, log in to Instagram; the window closes automatically once the session is captured")

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		session, ok, err := captureSession(taskCtx)
		if err != nil {
			return fmt.Errorf("read browser cookies: %w", err)
		}
		if !ok {
			continue
		}

		if err := instagram.SaveSession(sessionPath, session); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		logger.Info("instagram session captured", "user_id", session.UserID, "path", sessionPath)
		return nil
	}
}

// captureSession reads the Instagram cookies out of the browser and reports
// whether a complete logged-in session is present yet.
func captureSession(taskCtx context.Context) (instagram.Session, bool, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(taskCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return instagram.Session{}, false, err
	}

	var session instagram.Session
	for _, ck := range cookies {
		if !strings.HasSuffix(ck.Domain, "instagram.com") {
			continue
		}
		switch ck.Name {
		case "sessionid":
			session.SessionID = ck.Value
		case "csrftoken":
			session.CSRFToken = ck.Value
		case "ds_user_id":
			session.UserID = ck.Value
		}
	}

	return session, session.SessionID != "" && session.UserID != "", nil
}
