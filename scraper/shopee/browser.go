package shopee

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"shopee-research/utils"
)

// BrowserWarmer loads the search page in headless Chrome and copies the
// resulting cookies into the session jar. Shopee sets its anti-bot cookies
// from JavaScript, which a plain GET never runs.
type BrowserWarmer struct {
	ChromeBin string
	Timeout   time.Duration
	Settle    time.Duration
	Logger    *utils.Logger
}

// WarmTimeout covers browser start, navigation and Settle. It replaces the
// client's request timeout for the warm-up.
func (b *BrowserWarmer) WarmTimeout() time.Duration {
	return b.Timeout
}

func (b *BrowserWarmer) Warm(ctx context.Context, client *http.Client, page *http.Request) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	)
	if ua := page.Header.Get("User-Agent"); ua != "" {
		opts = append(opts, chromedp.UserAgent(ua))
	}
	if bin := findChromeBinary(b.ChromeBin); bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	if b.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		browserCtx, cancelTimeout = context.WithTimeout(browserCtx, b.Timeout)
		defer cancelTimeout()
	}

	pageURL := page.URL.String()
	var cookies []*network.Cookie
	err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.Navigate(pageURL),
		chromedp.Sleep(b.Settle),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().WithUrls([]string{pageURL}).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return fmt.Errorf("browser warm-up: %w", err)
	}

	if b.Logger != nil {
		b.Logger.Debug("[shopee] browser warm-up collected %d cookies from %s", len(cookies), pageURL)
	}
	if client.Jar != nil && len(cookies) > 0 {
		client.Jar.SetCookies(page.URL, toHTTPCookies(cookies))
	}
	return nil
}

func toHTTPCookies(in []*network.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		if c == nil || c.Name == "" {
			continue
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, hc)
	}
	return out
}

// findChromeBinary locates Chrome/Chromium, preferring an explicit path.
func findChromeBinary(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
