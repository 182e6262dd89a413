// Package metadata scrapes title, description and preview image from web pages.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/markwell-app/markwell/internal/config"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// Status reports whether enrichment produced usable metadata
type Status string

const (
	StatusPending     Status = "pending"
	StatusOK          Status = "ok"
	StatusUnavailable Status = "unavailable"
)

var (
	// ErrUnsupportedScheme is reported for anything other than http and https
	ErrUnsupportedScheme = errors.New("only http and https urls are supported")
	// ErrNotHTML is reported when the response is not an HTML document
	ErrNotHTML = errors.New("response is not html")
)

var tracer = otel.Tracer("github.com/markwell-app/markwell/internal/metadata")

// Metadata is what a page says about itself
type Metadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

// IsEmpty reports whether nothing was extracted
func (m Metadata) IsEmpty() bool {
	return m.Title == "" && m.Description == "" && m.Image == ""
}

// Result is the outcome of a fetch. Metadata is the zero value unless Status is ok.
type Result struct {
	Metadata Metadata `json:"metadata"`
	Status   Status   `json:"status"`
	Err      error    `json:"-"`
}

// Source fetches metadata for a URL. Implementations never fail the caller;
// problems are reported through Result.Status.
type Source interface {
	Fetch(ctx context.Context, rawURL string) Result
}

// Recorder receives fetch outcomes, typically the Prometheus metrics
type Recorder interface {
	RecordMetadataFetch(status string)
}

// Fetcher is the HTTP implementation of Source
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	maxBytes  int64
	recorder  Recorder
}

// NewFetcher creates a fetcher from configuration
func NewFetcher(cfg config.MetadataConfig) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("stopped after 5 redirects")
				}
				if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
					return ErrUnsupportedScheme
				}
				return nil
			},
		},
		limiter:   rate.NewLimiter(limit, burst),
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
	}
}

// SetRecorder sets where fetch outcomes are reported
func (f *Fetcher) SetRecorder(r Recorder) {
	f.recorder = r
}

// Fetch downloads rawURL and extracts its metadata. It never panics and never
// returns an error value: failures come back as StatusUnavailable with Err set.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (res Result) {
	ctx, span := tracer.Start(ctx, "metadata.Fetch")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			res = unavailable(fmt.Errorf("panic while extracting metadata: %v", r))
		}
		span.SetAttributes(attribute.String("metadata.status", string(res.Status)))
		if res.Err != nil {
			span.RecordError(res.Err)
			log.Debug().Err(res.Err).Str("url", rawURL).Msg("Metadata unavailable")
		}
		if f.recorder != nil {
			f.recorder.RecordMetadataFetch(string(res.Status))
		}
	}()

	u, err := ParseURL(rawURL)
	if err != nil {
		return unavailable(err)
	}
	span.SetAttributes(attribute.String("metadata.host", u.Host))

	if err := f.limiter.Wait(ctx); err != nil {
		return unavailable(fmt.Errorf("fetch throttled: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return unavailable(err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return unavailable(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || (mediaType != "text/html" && mediaType != "application/xhtml+xml") {
			return unavailable(fmt.Errorf("%w: %s", ErrNotHTML, ct))
		}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return unavailable(fmt.Errorf("failed to parse html: %w", err))
	}

	// Relative images resolve against the final URL after redirects
	return Result{Metadata: Extract(doc, resp.Request.URL), Status: StatusOK}
}

// ParseURL accepts absolute http and https URLs only
func ParseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrUnsupportedScheme
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid url: missing host")
	}
	return u, nil
}

// Extract reads metadata from a parsed document. Open Graph wins over
// Twitter cards, which win over plain HTML tags.
func Extract(doc *goquery.Document, base *url.URL) Metadata {
	md := Metadata{
		Title: firstNonEmpty(
			metaContent(doc, "property", "og:title"),
			metaContent(doc, "name", "twitter:title"),
			doc.Find("title").First().Text(),
		),
		Description: firstNonEmpty(
			metaContent(doc, "property", "og:description"),
			metaContent(doc, "name", "twitter:description"),
			metaContent(doc, "name", "description"),
		),
	}

	image := firstNonEmpty(
		metaContent(doc, "property", "og:image"),
		metaContent(doc, "property", "og:image:url"),
		metaContent(doc, "name", "twitter:image"),
	)
	if image != "" {
		md.Image = resolve(base, image)
	}

	return md
}

func metaContent(doc *goquery.Document, attr, key string) string {
	var content string
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr(attr)
		if !strings.EqualFold(strings.TrimSpace(v), key) {
			return true
		}
		content, _ = s.Attr("content")
		return strings.TrimSpace(content) == ""
	})
	return content
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = collapseSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func resolve(base *url.URL, ref string) string {
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		return r.String()
	}
	abs := base.ResolveReference(r)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

func unavailable(err error) Result {
	return Result{Status: StatusUnavailable, Err: err}
}
