package shopee

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopee-research/models"
	"shopee-research/utils"
)

const searchPath = "/api/v4/search/search_items"

func quietLogger() *utils.Logger { return utils.NewLoggerTo(io.Discard, utils.LevelError) }

func newTestClient(t *testing.T, srv *httptest.Server, id *Identity, timeout time.Duration) *Client {
	t.Helper()
	c, err := New(Options{
		Endpoint:    srv.URL + searchPath,
		SiteURL:     srv.URL,
		Timeout:     timeout,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		Identity:    id,
	}, quietLogger())
	require.NoError(t, err)
	return c
}

func widgetRequest() models.SearchRequest {
	return models.SearchRequest{
		Keyword: "widget", Limit: 50, By: "relevancy", Order: "desc",
		PageType: "search", Scenario: "PAGE_GLOBAL_SEARCH", Version: 2,
	}
}

func TestSearchReturnsItems(t *testing.T) {
	var gotQuery url.Values
	var gotUA, gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		_, _ = io.WriteString(w, `{"items":[{"item_basic":{"name":"Widget","price":1000000}},"junk",{"item_basic":{"name":"Gadget"}}]}`)
	}))
	defer srv.Close()

	h := http.Header{}
	h.Set("Referer", "https://shopee.com.my/")
	id := &Identity{UserAgents: []string{"test-agent"}, Headers: h}

	items, err := newTestClient(t, srv, id, time.Second).Search(context.Background(), widgetRequest())
	require.NoError(t, err)
	require.Len(t, items, 2, "non-object entries are dropped")

	name, ok := items[0].Lookup("item_basic", "name")
	require.True(t, ok)
	assert.Equal(t, "Widget", name)

	assert.Equal(t, "widget", gotQuery.Get("keyword"))
	assert.Equal(t, "50", gotQuery.Get("limit"))
	assert.Equal(t, "relevancy", gotQuery.Get("by"))
	assert.Equal(t, "desc", gotQuery.Get("order"))
	assert.Equal(t, "search", gotQuery.Get("page_type"))
	assert.Equal(t, "PAGE_GLOBAL_SEARCH", gotQuery.Get("scenario"))
	assert.Equal(t, "2", gotQuery.Get("version"))
	assert.Equal(t, "test-agent", gotUA)
	assert.Equal(t, "https://shopee.com.my/", gotReferer)
}

func TestSearchMissingItemsIsEmptyNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = io.WriteString(w, `{"error":90309999,"items":null}`)
	}))
	defer srv.Close()

	items, err := newTestClient(t, srv, nil, time.Second).Search(context.Background(), widgetRequest())
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestSearchNon200IsRetriedThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, nil, time.Second).Search(context.Background(), widgetRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStatus))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestSearchRecoversOnRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"items":[{"item_basic":{"name":"Widget"}}]}`)
	}))
	defer srv.Close()

	items, err := newTestClient(t, srv, nil, time.Second).Search(context.Background(), widgetRequest())
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestSearchMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>captcha</html>`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, nil, time.Second).Search(context.Background(), widgetRequest())
	assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
}

func TestSearchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestClient(t, srv, nil, 50*time.Millisecond).Search(context.Background(), widgetRequest())
	assert.Error(t, err)
}

func TestSearchEmptyKeyword(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, nil, time.Second).Search(context.Background(), models.SearchRequest{Keyword: "   "})
	assert.ErrorIs(t, err, ErrEmptyKeyword)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestSearchHTTPWarmupCarriesCookies(t *testing.T) {
	var sawCookie atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "widget", r.URL.Query().Get("keyword"))
		http.SetCookie(w, &http.Cookie{Name: "SPC_F", Value: "session-1", Path: "/"})
		_, _ = io.WriteString(w, "<html></html>")
	})
	mux.HandleFunc(searchPath, func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("SPC_F"); err == nil && c.Value == "session-1" {
			sawCookie.Store(true)
		}
		_, _ = io.WriteString(w, `{"items":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	id := &Identity{UserAgents: []string{"ua"}, Warmer: HTTPWarmer{}}
	_, err := newTestClient(t, srv, id, time.Second).Search(context.Background(), widgetRequest())
	require.NoError(t, err)
	assert.True(t, sawCookie.Load(), "API call should carry the warm-up cookie")
}

type failingWarmer struct{ calls int32 }

func (f *failingWarmer) Warm(context.Context, *http.Client, *http.Request) error {
	atomic.AddInt32(&f.calls, 1)
	return errors.New("blocked")
}

func TestSearchWarmupFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"items":[{"item_basic":{}}]}`)
	}))
	defer srv.Close()

	w := &failingWarmer{}
	items, err := newTestClient(t, srv, &Identity{Warmer: w}, time.Second).Search(context.Background(), widgetRequest())
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.EqualValues(t, 1, atomic.LoadInt32(&w.calls))
}

// deadlineWarmer records how long the warm-up context had left.
type deadlineWarmer struct {
	budget    time.Duration
	remaining time.Duration
}

func (d *deadlineWarmer) WarmTimeout() time.Duration { return d.budget }

func (d *deadlineWarmer) Warm(ctx context.Context, _ *http.Client, _ *http.Request) error {
	if deadline, ok := ctx.Deadline(); ok {
		d.remaining = time.Until(deadline)
	}
	return nil
}

func TestWarmupUsesWarmerTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"items":[]}`)
	}))
	defer srv.Close()

	tests := []struct {
		name    string
		budget  time.Duration
		wantMin time.Duration
		wantMax time.Duration
	}{
		{"warmer budget longer than request timeout", 10 * time.Second, 5 * time.Second, 10 * time.Second},
		{"no budget falls back to request timeout", 0, time.Millisecond, 200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &deadlineWarmer{budget: tt.budget}
			_, err := newTestClient(t, srv, &Identity{Warmer: w}, 200*time.Millisecond).
				Search(context.Background(), widgetRequest())
			require.NoError(t, err)
			assert.GreaterOrEqual(t, w.remaining, tt.wantMin)
			assert.LessOrEqual(t, w.remaining, tt.wantMax)
		})
	}
}

func TestBrowserWarmerDeclaresItsTimeout(t *testing.T) {
	b := &BrowserWarmer{Timeout: 45 * time.Second}
	c := &Client{timeout: 15 * time.Second, identity: &Identity{Warmer: b}}
	assert.Equal(t, 45*time.Second, c.warmTimeout())

	c.identity = &Identity{Warmer: HTTPWarmer{}}
	assert.Equal(t, 15*time.Second, c.warmTimeout())
}

func TestSessionsDoNotShareCookies(t *testing.T) {
	var leaked atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc(searchPath, func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("per_call"); err == nil {
			leaked.Store(true)
		}
		http.SetCookie(w, &http.Cookie{Name: "per_call", Value: "1", Path: "/"})
		_, _ = io.WriteString(w, `{"items":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv, nil, time.Second)
	for i := 0; i < 2; i++ {
		_, err := c.Search(context.Background(), widgetRequest())
		require.NoError(t, err)
	}
	assert.False(t, leaked.Load())
}

func TestIdentityUserAgentRotation(t *testing.T) {
	pool := []string{"a", "b", "c"}

	fixed := &Identity{UserAgents: pool}
	assert.Equal(t, "a", fixed.UserAgent())

	next := 0
	rotating := &Identity{UserAgents: pool, Rotate: true, pick: func(n int) int {
		i := next % n
		next++
		return i
	}}
	assert.Equal(t, "a", rotating.UserAgent())
	assert.Equal(t, "b", rotating.UserAgent())
	assert.Equal(t, "c", rotating.UserAgent())

	assert.Equal(t, "", (&Identity{}).UserAgent())
}

func TestBuildSearchURLEscapesKeyword(t *testing.T) {
	c, err := New(Options{Endpoint: "https://shopee.com.my/api/v4/search/search_items", SiteURL: "https://shopee.com.my/"}, quietLogger())
	require.NoError(t, err)

	u, err := url.Parse(c.BuildSearchURL(models.SearchRequest{Keyword: " korean fashion & co "}))
	require.NoError(t, err)
	assert.Equal(t, "korean fashion & co", u.Query().Get("keyword"))
	assert.Empty(t, u.Query().Get("limit"))

	assert.Equal(t, "https://shopee.com.my/search?keyword=phone+holder", c.SearchPageURL("phone holder"))
}

func TestNewRejectsRelativeEndpoint(t *testing.T) {
	_, err := New(Options{Endpoint: "/api/v4/search"}, quietLogger())
	assert.Error(t, err)
}

func TestToHTTPCookies(t *testing.T) {
	in := []*network.Cookie{
		{Name: "SPC_F", Value: "x", Domain: ".shopee.com.my", Path: "/", Secure: true, HTTPOnly: true, Expires: 1893456000},
		{Name: "", Value: "dropped"},
		nil,
		{Name: "session", Value: "y", Expires: -1},
	}

	out := toHTTPCookies(in)
	require.Len(t, out, 2)
	assert.Equal(t, "SPC_F", out[0].Name)
	assert.True(t, out[0].Secure)
	assert.True(t, out[0].HttpOnly)
	assert.Equal(t, int64(1893456000), out[0].Expires.Unix())
	assert.True(t, out[1].Expires.IsZero())
}
