// Package transport opens URLs as sized byte streams for the installer.
package transport

import (
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/studio1767/ctrmgr/internal/logging"
)

// Options configures a Client.
type Options struct {
	UserAgent    string
	Retries      int
	Timeout      time.Duration
	MaxRedirects int
	// Compress asks the server for gzip or deflate encoding. The decoded size
	// is then unknown.
	Compress bool
	Logger   *logging.Logger

	// RetryWaitMin and RetryWaitMax bound the backoff between attempts.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// Client opens URLs. Connection failures and 5xx responses are retried
// before any body bytes are handed out.
type Client struct {
	rc   *retryablehttp.Client
	opts Options
	log  *logging.Logger
}

// retryLogger feeds retryablehttp's leveled logging into zerolog.
type retryLogger struct {
	log *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}

func New(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 10
	}

	// the timeout bounds the wait for headers only; bodies may stream for long
	// and Go's transparent decompression would hide the body size
	httpClient := &http.Client{
		CheckRedirect: checkRedirect(opts.MaxRedirects),
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: opts.Timeout,
			DisableCompression:    true,
		},
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = httpClient
	rc.RetryMax = opts.Retries
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	rc.Logger = &retryLogger{log: log.With("component", "http")}
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{rc: rc, opts: opts, log: log}
}

func checkRedirect(max int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		for _, prev := range via {
			if prev.URL.String() == req.URL.String() {
				return &ErrRedirectLoop{URL: via[0].URL.String(), Hops: len(via)}
			}
		}
		if len(via) >= max {
			return &ErrRedirectLoop{URL: via[0].URL.String(), Hops: len(via)}
		}
		return nil
	}
}

// checkRetry never retries a redirect loop; it would only loop again.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	var loop *ErrRedirectLoop
	if errors.As(err, &loop) {
		return false, loop
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Open requests rawURL starting at offset. A zero offset sends no Range header.
func (c *Client) Open(ctx context.Context, rawURL string, offset int64) (*Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	if c.opts.Compress {
		req.Header.Set("Accept-Encoding", "gzip, deflate")
	}

	resp, err := c.rc.Do(req)
	if err != nil {
		var loop *ErrRedirectLoop
		if errors.As(err, &loop) {
			return nil, loop
		}
		return nil, err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, &ErrStatus{URL: rawURL, Status: resp.StatusCode}
	}

	r := &Response{
		url:  resp.Request.URL,
		raw:  resp.Body,
		body: resp.Body,
		size: resp.ContentLength,
		name: suggestedName(resp),
	}

	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		r.body, r.dec, r.size = zr, zr, -1
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		r.body, r.dec, r.size = zr, zr, -1
	}

	c.log.Debug().Str("url", rawURL).Int("status", resp.StatusCode).Int64("size", r.size).Msg("opened")
	return r, nil
}

// Response is an open download.
type Response struct {
	url  *url.URL
	raw  io.ReadCloser
	body io.Reader
	dec  io.Closer
	size int64
	name string
}

// Size returns the declared body size. Encoded bodies have none.
func (r *Response) Size() (uint64, error) {
	if r.size < 0 {
		return 0, &ErrUnknownSize{URL: r.url.String()}
	}
	return uint64(r.size), nil
}

// SuggestedName is the file name from Content-Disposition, else the last
// path element of the final URL.
func (r *Response) SuggestedName() string {
	return r.name
}

func (r *Response) Read(p []byte) (int, error) {
	return r.body.Read(p)
}

// ReadFull reads until p is full or the body ends. A short final read
// returns io.EOF with the bytes read.
func (r *Response) ReadFull(p []byte) (int, error) {
	n, err := io.ReadFull(r.body, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

func (r *Response) Close() error {
	if r.dec != nil {
		r.dec.Close()
	}
	return r.raw.Close()
}

func suggestedName(resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := path.Base(params["filename"]); name != "." && name != "/" && name != "" {
				return name
			}
		}
	}

	name := path.Base(resp.Request.URL.Path)
	if name == "." || name == "/" || name == "" {
		return "download"
	}
	return name
}
