package shopee

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"shopee-research/config"
	"shopee-research/utils"
)

// Warmer visits the human-facing search page before the API call so the
// session picks up whatever cookies the site hands out.
type Warmer interface {
	Warm(ctx context.Context, client *http.Client, page *http.Request) error
}

// Identity is the browser persona presented to the search endpoint.
type Identity struct {
	UserAgents []string
	Rotate     bool
	Headers    http.Header
	Warmer     Warmer

	// pick chooses an index in [0,n); nil means math/rand.
	pick func(n int) int
}

// IdentityFromConfig builds the identity described by cfg.
func IdentityFromConfig(cfg *config.Config, logger *utils.Logger) *Identity {
	h := http.Header{}
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", cfg.AcceptLanguage)
	h.Set("Connection", "keep-alive")
	if cfg.Referer != "" {
		h.Set("Referer", cfg.Referer)
	}
	if cfg.Cookie != "" {
		h.Set("Cookie", cfg.Cookie)
	}

	id := &Identity{
		UserAgents: cfg.UserAgents,
		Rotate:     cfg.RotateUserAgent,
		Headers:    h,
	}

	switch cfg.Warmup {
	case "http":
		id.Warmer = HTTPWarmer{}
	case "browser":
		id.Warmer = &BrowserWarmer{
			ChromeBin: cfg.ChromeBin,
			Timeout:   cfg.RequestTimeout + 30*time.Second,
			Settle:    3 * time.Second,
			Logger:    logger,
		}
	}
	return id
}

// UserAgent returns the agent for the next session: a random pool entry
// when rotating, otherwise the first.
func (id *Identity) UserAgent() string {
	switch len(id.UserAgents) {
	case 0:
		return ""
	case 1:
		return id.UserAgents[0]
	}
	if !id.Rotate {
		return id.UserAgents[0]
	}
	pick := id.pick
	if pick == nil {
		pick = rand.Intn
	}
	return id.UserAgents[pick(len(id.UserAgents))]
}

// Apply copies the static headers and userAgent onto req.
func (id *Identity) Apply(req *http.Request, userAgent string) {
	for k, vals := range id.Headers {
		req.Header.Del(k)
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
}

// HTTPWarmer fetches the search page through the session client; cookies
// set by the response land in the client's jar.
type HTTPWarmer struct{}

func (HTTPWarmer) Warm(ctx context.Context, client *http.Client, page *http.Request) error {
	resp, err := client.Do(page.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("warm-up: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("warm-up: status %d", resp.StatusCode)
	}
	return nil
}
