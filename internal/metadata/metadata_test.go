package metadata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/markwell-app/markwell/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) RecordMetadataFetch(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[status]++
}

func testFetcher() *Fetcher {
	return NewFetcher(config.MetadataConfig{
		Timeout:      2 * time.Second,
		MaxBodyBytes: 64 << 10,
		UserAgent:    "MarkwellBot/test",
	})
}

func servePage(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_OpenGraph(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head>
			<title>Plain title</title>
			<meta property="og:title" content="  OG   title ">
			<meta name="twitter:title" content="Twitter title">
			<meta property="og:description" content="OG description">
			<meta name="description" content="Plain description">
			<meta property="og:image" content="/img/cover.png">
		</head><body></body></html>`)
	}))
	defer srv.Close()

	rec := &countingRecorder{}
	f := testFetcher()
	f.SetRecorder(rec)

	res := f.Fetch(context.Background(), srv.URL+"/articles/1")
	require.NoError(t, res.Err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "OG title", res.Metadata.Title)
	assert.Equal(t, "OG description", res.Metadata.Description)
	assert.Equal(t, srv.URL+"/img/cover.png", res.Metadata.Image)
	assert.Equal(t, "MarkwellBot/test", gotUA)
	assert.Equal(t, 1, rec.counts["ok"])
}

func TestFetch_Fallbacks(t *testing.T) {
	t.Run("twitter card before html", func(t *testing.T) {
		srv := servePage(t, "text/html", `<html><head>
			<title>Plain</title>
			<meta name="twitter:title" content="Card title">
			<meta name="twitter:description" content="Card description">
			<meta name="twitter:image" content="https://cdn.example.com/card.jpg">
		</head></html>`)

		res := testFetcher().Fetch(context.Background(), srv.URL)
		assert.Equal(t, StatusOK, res.Status)
		assert.Equal(t, Metadata{
			Title:       "Card title",
			Description: "Card description",
			Image:       "https://cdn.example.com/card.jpg",
		}, res.Metadata)
	})

	t.Run("plain html tags", func(t *testing.T) {
		srv := servePage(t, "text/html", `<html><head>
			<title>
				Just a title
			</title>
			<meta name="description" content="Just a description">
		</head></html>`)

		res := testFetcher().Fetch(context.Background(), srv.URL)
		assert.Equal(t, StatusOK, res.Status)
		assert.Equal(t, "Just a title", res.Metadata.Title)
		assert.Equal(t, "Just a description", res.Metadata.Description)
		assert.Empty(t, res.Metadata.Image)
	})

	t.Run("page without metadata is still ok", func(t *testing.T) {
		srv := servePage(t, "text/html", `<html><body>hello</body></html>`)
		res := testFetcher().Fetch(context.Background(), srv.URL)
		assert.Equal(t, StatusOK, res.Status)
		assert.True(t, res.Metadata.IsEmpty())
	})
}

func TestFetch_Unavailable(t *testing.T) {
	ctx := context.Background()

	t.Run("unreachable host", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()

		res := testFetcher().Fetch(ctx, addr)
		assert.Equal(t, StatusUnavailable, res.Status)
		assert.Error(t, res.Err)
		assert.Equal(t, Metadata{}, res.Metadata)
	})

	t.Run("non 2xx", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `<title>Forbidden</title>`)
		}))
		defer srv.Close()

		res := testFetcher().Fetch(ctx, srv.URL)
		assert.Equal(t, StatusUnavailable, res.Status)
		assert.True(t, res.Metadata.IsEmpty())
	})

	t.Run("not html", func(t *testing.T) {
		srv := servePage(t, "application/pdf", "%PDF-1.7")
		res := testFetcher().Fetch(ctx, srv.URL)
		assert.Equal(t, StatusUnavailable, res.Status)
		assert.ErrorIs(t, res.Err, ErrNotHTML)
	})

	t.Run("unsupported schemes", func(t *testing.T) {
		for _, raw := range []string{"ftp://example.com/file", "javascript:alert(1)", "file:///etc/passwd", "", "not a url"} {
			res := testFetcher().Fetch(ctx, raw)
			assert.Equal(t, StatusUnavailable, res.Status, raw)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		srv := servePage(t, "text/html", `<title>x</title>`)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		res := testFetcher().Fetch(cctx, srv.URL)
		assert.Equal(t, StatusUnavailable, res.Status)
	})
}

func TestFetch_BodyLimit(t *testing.T) {
	// The title sits past the cap, so only the padding is read
	body := "<html><head>" + strings.Repeat("<!-- padding -->", 1000) + "<title>Too far</title></head></html>"
	srv := servePage(t, "text/html", body)

	f := NewFetcher(config.MetadataConfig{Timeout: time.Second, MaxBodyBytes: 1024})
	res := f.Fetch(context.Background(), srv.URL)
	assert.Equal(t, StatusOK, res.Status)
	assert.Empty(t, res.Metadata.Title)
}

func TestFetch_Throttled(t *testing.T) {
	srv := servePage(t, "text/html", `<title>x</title>`)

	f := NewFetcher(config.MetadataConfig{Timeout: time.Second, RatePerSec: 0.001, Burst: 1})
	assert.Equal(t, StatusOK, f.Fetch(context.Background(), srv.URL).Status)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := f.Fetch(ctx, srv.URL)
	assert.Equal(t, StatusUnavailable, res.Status)
	assert.ErrorContains(t, res.Err, "throttled")
}

func TestExtract_ResolvesImage(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<meta property="og:image" content="//cdn.example.com/a.png">`))
	require.NoError(t, err)

	base, _ := url.Parse("https://blog.example.com/post/1")
	assert.Equal(t, "https://cdn.example.com/a.png", Extract(doc, base).Image)

	doc, err = goquery.NewDocumentFromReader(strings.NewReader(
		`<meta property="og:image" content="javascript:alert(1)">`))
	require.NoError(t, err)
	assert.Empty(t, Extract(doc, base).Image)
}

func TestParseURL(t *testing.T) {
	u, err := ParseURL("  https://example.com/a?b=c ")
	require.NoError(t, err)
	assert.Equal(t, "example.com", u.Host)

	_, err = ParseURL("mailto:someone@example.com")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	_, err = ParseURL("https:///nohost")
	assert.Error(t, err)
}
