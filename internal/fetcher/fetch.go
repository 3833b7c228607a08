package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"
)

// DefaultUserAgent is sent when Options.UserAgent is empty. Many panels
// reject the Go default.
const DefaultUserAgent = "VaultTV/1.0"

// MaxBodyBytes caps a single decoded upstream response.
const MaxBodyBytes = 256 << 20

// ErrBodyTooLarge is wrapped by the FetchError of a response whose decoded
// body exceeds the client's limit. A cut-off playlist would otherwise parse
// as a shorter, valid one.
var ErrBodyTooLarge = errors.New("response body too large")

// Options configures a Client.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	// RPS limits upstream requests per second across the client. Zero or
	// negative disables limiting.
	RPS   float64
	Burst int
	// MaxBodyBytes caps decoded response bodies; zero uses MaxBodyBytes.
	MaxBodyBytes int64
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client performs rate-limited GETs against provider endpoints and decodes
// brotli and gzip response bodies.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	maxBody   int64
}

// NewClient builds a Client from opts.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 4
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = MaxBodyBytes
	}
	return &Client{http: hc, limiter: rate.NewLimiter(limit, burst), userAgent: ua, maxBody: maxBody}
}

// Get fetches rawURL and returns the decoded body. A non-2xx status is a
// *FetchError carrying the status code; transport failures are a
// *FetchError wrapping the cause. URLs in errors are redacted.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: Redact(rawURL), Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Encoding", "br, gzip")

	resp, err := c.http.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, &FetchError{URL: Redact(rawURL), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &FetchError{URL: Redact(rawURL), StatusCode: resp.StatusCode}
	}

	body, err := decodeBody(resp, c.maxBody)
	if err != nil {
		return nil, &FetchError{URL: Redact(rawURL), Err: err}
	}
	return body, nil
}

func decodeBody(resp *http.Response, limit int64) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		r = brotli.NewReader(r)
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return readLimited(r, limit)
}

// readLimited reads r fully, failing with ErrBodyTooLarge past limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("ReadAll: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit)
	}
	return body, nil
}

// gunzipIfNeeded inflates bodies served as raw .gz files without a
// Content-Encoding header, as XMLTV guides often are.
func gunzipIfNeeded(body []byte, limit int64) ([]byte, error) {
	if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
		return body, nil
	}
	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()
	return readLimited(gz, limit)
}
