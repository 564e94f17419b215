package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/NamanBalaji/chunkdl/internal/logger"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultIdleTimeout    = 90 * time.Second
	keepAlivePeriod       = 30 * time.Second
	maxIdleConns          = 100
	tlsHandshakeTimeout   = 10 * time.Second
	expectContinueTimeout = 1 * time.Second
	maxConnsPerHost       = 16

	DefaultUserAgent = "chunkdl/1.0"

	defaultDownloadName = "download"
)

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeout          time.Duration
	checkCertificate bool
	userAgent        string
	headers          map[string]string
}

// WithTimeout bounds connection setup and the wait for response headers.
// Body transfer is not bounded so large ranges can stream.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCheckCertificate toggles TLS certificate validation.
func WithCheckCertificate(check bool) ClientOption {
	return func(c *clientConfig) {
		c.checkCertificate = check
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(c *clientConfig) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHeaders adds headers to every request issued by the client.
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *clientConfig) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// Client is an HTTP client tuned for parallel ranged downloads.
type Client struct {
	*http.Client
	userAgent string
	headers   map[string]string
}

// NewClient creates a new HTTP client with custom transport settings.
func NewClient(opts ...ClientOption) *Client {
	cfg := &clientConfig{
		timeout:          defaultConnectTimeout,
		checkCertificate: true,
		userAgent:        DefaultUserAgent,
		headers:          make(map[string]string),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if !cfg.checkCertificate {
		logger.Warnf("TLS certificate verification is disabled")
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.timeout,
			KeepAlive: keepAlivePeriod,
		}).DialContext,
		MaxIdleConns:          maxIdleConns,
		MaxIdleConnsPerHost:   maxConnsPerHost,
		IdleConnTimeout:       defaultIdleTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ResponseHeaderTimeout: cfg.timeout,
		ExpectContinueTimeout: expectContinueTimeout,
		DisableCompression:    true,
		MaxConnsPerHost:       maxConnsPerHost,
		TLSClientConfig: &tls.Config{
			//nolint:gosec // explicit, logged opt-out
			InsecureSkipVerify: !cfg.checkCertificate,
			MinVersion:         tls.VersionTLS12,
		},
	}

	return &Client{
		Client:    &http.Client{Transport: transport},
		userAgent: cfg.userAgent,
		headers:   cfg.headers,
	}
}

// Head performs a HEAD request to the specified URL with optional headers.
func (c *Client) Head(ctx context.Context, urlStr string, headers map[string]string) (*http.Response, error) {
	req, err := c.generateRequest(ctx, urlStr, http.MethodHead, headers)
	if err != nil {
		return nil, err
	}

	logger.Debugf("Sending HEAD request to %s", urlStr)

	resp, err := c.Do(req)
	if err != nil {
		logger.Debugf("HEAD request failed for %s: %v", urlStr, err)
		return nil, fmt.Errorf("%w: %w", ClassifyError(err), err)
	}

	logger.Debugf("HEAD response for %s: status=%d", urlStr, resp.StatusCode)

	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		return nil, ClassifyHTTPError(resp.StatusCode)
	}

	return resp, nil
}

// Range performs a GET for the inclusive byte range [start, end]. The caller
// owns the returned body. A 200 response to a ranged request is rejected with
// ErrRangeIgnored since writing it would corrupt the chunk.
func (c *Client) Range(ctx context.Context, urlStr string, start, end int64, headers map[string]string) (*http.Response, error) {
	req, err := c.generateRequest(ctx, urlStr, http.MethodGet, headers)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	logger.Debugf("Sending Range GET bytes=%d-%d to %s", start, end, urlStr)

	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ClassifyError(err), err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		return nil, ClassifyHTTPError(resp.StatusCode)
	}

	if resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		logger.Warnf("Server ignored range for %s (status: %d)", urlStr, resp.StatusCode)

		return nil, ErrRangeIgnored
	}

	return resp, nil
}

// Get performs a plain GET request to the specified URL.
func (c *Client) Get(ctx context.Context, urlStr string, headers map[string]string) (*http.Response, error) {
	req, err := c.generateRequest(ctx, urlStr, http.MethodGet, headers)
	if err != nil {
		return nil, err
	}

	logger.Debugf("Sending GET request to %s", urlStr)

	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ClassifyError(err), err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		return nil, ClassifyHTTPError(resp.StatusCode)
	}

	return resp, nil
}

func (c *Client) generateRequest(ctx context.Context, urlStr, method string, headers map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestCreation, err)
	}

	req.Header.Set("User-Agent", c.userAgent)

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// GetFilename extracts the filename from the Content-Disposition header or the URL.
func GetFilename(resp *http.Response) string {
	if fileName, ok := getFileNameFromContentDisposition(resp.Header.Get("Content-Disposition")); ok {
		return fileName
	}

	if resp.Request != nil && resp.Request.URL != nil {
		return FilenameFromURL(resp.Request.URL)
	}

	return defaultDownloadName
}

// FilenameFromURL returns the URL-decoded last path segment of u.
func FilenameFromURL(u *url.URL) string {
	if qname := u.Query().Get("filename"); qname != "" {
		if name := sanitizeFilename(qname); name != "" {
			return name
		}
	}

	base := path.Base(u.EscapedPath())
	if decoded, err := url.QueryUnescape(base); err == nil {
		base = decoded
	}

	if name := sanitizeFilename(base); name != "" {
		return name
	}

	return defaultDownloadName
}

func getFileNameFromContentDisposition(header string) (string, bool) {
	if header == "" {
		return "", false
	}

	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return "", false
	}

	if fName := sanitizeFilename(params["filename"]); fName != "" {
		return fName, true
	}

	if fName, ok := params["filename*"]; ok {
		if rest, found := strings.CutPrefix(fName, "UTF-8''"); found {
			if unescaped, err := url.PathUnescape(rest); err == nil {
				fName = unescaped
			}
		}

		if fName = sanitizeFilename(fName); fName != "" {
			return fName, true
		}
	}

	return "", false
}

func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(path.Base(strings.TrimSpace(name)))

	switch name {
	case "", ".", "..", "/":
		return ""
	}

	return name
}

// ParseContentRangeTotal returns the complete length from a Content-Range
// header such as "bytes 0-0/1234". It returns -1 when the length is "*".
func ParseContentRangeTotal(header string) (int64, error) {
	_, total, found := strings.Cut(header, "/")
	if !found {
		return 0, ErrInvalidContentRange
	}

	if total == "*" {
		return -1, nil
	}

	size, err := strconv.ParseInt(strings.TrimSpace(total), 10, 64)
	if err != nil || size < 0 {
		return 0, ErrInvalidContentRange
	}

	return size, nil
}
