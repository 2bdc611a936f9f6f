package httpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// Default download settings
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 30 * time.Second
)

// StatusError is returned when a download answers with a non-200 status
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download %s returned status %d", e.URL, e.StatusCode)
}

// Downloader fetches asset bytes over HTTP
type Downloader struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	logger     arbor.ILogger
}

// DownloaderOption configures a Downloader
type DownloaderOption func(*Downloader)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) DownloaderOption {
	return func(d *Downloader) {
		d.httpClient = httpClient
	}
}

// WithRateLimit caps downloads per second. Zero or less disables the limit.
func WithRateLimit(perSecond float64) DownloaderOption {
	return func(d *Downloader) {
		if perSecond <= 0 {
			d.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) DownloaderOption {
	return func(d *Downloader) {
		d.userAgent = ua
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) DownloaderOption {
	return func(d *Downloader) {
		d.logger = logger
	}
}

// NewDownloadHTTPClient creates an HTTP client with separate dial and response timeouts.
// The body read itself is bounded by the caller's context.
func NewDownloadHTTPClient(connectTimeout, readTimeout time.Duration) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout
	transport.ResponseHeaderTimeout = readTimeout
	return &http.Client{Transport: transport}
}

// NewDownloader creates a new Downloader
func NewDownloader(opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		httpClient: NewDownloadHTTPClient(DefaultConnectTimeout, DefaultReadTimeout),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open issues a GET and returns the response body. The caller closes it.
func (d *Downloader) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("download rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	if d.logger != nil {
		d.logger.Trace().Str("url", rawURL).Msg("Downloading asset")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	return resp.Body, nil
}
