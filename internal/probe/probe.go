package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/NamanBalaji/chunkdl/internal/errors"
	"github.com/NamanBalaji/chunkdl/internal/integrity"
	"github.com/NamanBalaji/chunkdl/internal/logger"
	httpPkg "github.com/NamanBalaji/chunkdl/pkg/http"
)

// UnknownSize marks a resource whose length the server did not report.
const UnknownSize int64 = -1

var validate = validator.New()

// ResourceDescriptor is the immutable result of probing a URI.
type ResourceDescriptor struct {
	URI            string         `json:"uri"`
	TotalSize      int64          `json:"totalSize"`
	SuggestedName  string         `json:"suggestedName"`
	SupportsRanges bool           `json:"supportsRanges"`
	Integrity      integrity.Hint `json:"integrity"`
}

// SizeKnown reports whether the server advertised a length.
func (r ResourceDescriptor) SizeKnown() bool {
	return r.TotalSize >= 0
}

// Resumable reports whether the resource can be fetched in byte ranges.
func (r ResourceDescriptor) Resumable() bool {
	return r.SupportsRanges && r.SizeKnown()
}

// Prober issues metadata requests against a resource.
type Prober struct {
	client  *httpPkg.Client
	headers map[string]string
}

func New(client *httpPkg.Client, headers map[string]string) *Prober {
	return &Prober{client: client, headers: headers}
}

// ValidateURI checks that uri is an absolute http(s) URL.
func ValidateURI(uri string) error {
	if err := validate.Var(uri, "required,url"); err != nil {
		return errors.NewResourceUnreachable(fmt.Errorf("invalid URI: %w", err), uri, 0)
	}

	u, err := url.Parse(uri)
	if err != nil {
		return errors.NewResourceUnreachable(err, uri, 0)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.NewResourceUnreachable(fmt.Errorf("unsupported scheme %q", u.Scheme), uri, 0)
	}

	return nil
}

// Probe performs a HEAD request and derives a ResourceDescriptor from the
// response headers. Servers rejecting HEAD with 405 are probed with a
// single byte range request instead, and servers that also ignore or reject
// that range with a plain GET. Every failure is ResourceUnreachable.
func (p *Prober) Probe(ctx context.Context, uri string) (ResourceDescriptor, error) {
	if err := ValidateURI(uri); err != nil {
		return ResourceDescriptor{}, err
	}

	desc, err := p.probeWithHEAD(ctx, uri)
	if err != nil && httpPkg.IsFallbackError(err) {
		logger.Warnf("HEAD not supported by %s, falling back to range request", uri)
		desc, err = p.probeWithRangeGET(ctx, uri)
		if err != nil && httpPkg.IsRangeUnsupported(err) {
			logger.Warnf("Range requests not supported by %s, falling back to regular GET", uri)
			desc, err = p.probeWithGET(ctx, uri)
		}
	}

	if err != nil {
		if ctx.Err() != nil {
			return ResourceDescriptor{}, errors.NewContextError(ctx.Err(), uri)
		}

		logger.Errorf("Probe failed for %s: %v", uri, err)

		return ResourceDescriptor{}, errors.NewResourceUnreachable(err, uri, httpPkg.StatusCode(err))
	}

	logger.Debugf("Probed %s: name=%s size=%d ranges=%v integrity=%s",
		uri, desc.SuggestedName, desc.TotalSize, desc.SupportsRanges, desc.Integrity.Algorithm)

	return desc, nil
}

func (p *Prober) probeWithHEAD(ctx context.Context, uri string) (ResourceDescriptor, error) {
	resp, err := p.client.Head(ctx, uri, p.headers)
	if err != nil {
		return ResourceDescriptor{}, err
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Errorf("Failed to close response body for %s: %v", uri, err)
		}
	}()

	size := resp.ContentLength
	if size < 0 {
		size = UnknownSize
	}

	return ResourceDescriptor{
		URI:            uri,
		TotalSize:      size,
		SuggestedName:  httpPkg.GetFilename(resp),
		SupportsRanges: acceptsRanges(resp.Header),
		Integrity:      integrity.FromHeaders(resp.Header),
	}, nil
}

func (p *Prober) probeWithRangeGET(ctx context.Context, uri string) (ResourceDescriptor, error) {
	resp, err := p.client.Range(ctx, uri, 0, 0, p.headers)
	if err != nil {
		return ResourceDescriptor{}, err
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Errorf("Failed to close response body for %s: %v", uri, err)
		}
	}()

	size, err := httpPkg.ParseContentRangeTotal(resp.Header.Get("Content-Range"))
	if err != nil {
		logger.Warnf("Failed to parse size from Content-Range header: %s", resp.Header.Get("Content-Range"))
		return ResourceDescriptor{}, err
	}

	// Content-MD5 on a partial response describes the partial body only.
	header := resp.Header.Clone()
	header.Del("Content-MD5")

	return ResourceDescriptor{
		URI:            uri,
		TotalSize:      size,
		SuggestedName:  httpPkg.GetFilename(resp),
		SupportsRanges: size >= 0,
		Integrity:      integrity.FromHeaders(header),
	}, nil
}

// probeWithGET reads only the response headers; the body is closed unread
// and the transfer is left to a single stream.
func (p *Prober) probeWithGET(ctx context.Context, uri string) (ResourceDescriptor, error) {
	resp, err := p.client.Get(ctx, uri, p.headers)
	if err != nil {
		return ResourceDescriptor{}, err
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Errorf("Failed to close response body for %s: %v", uri, err)
		}
	}()

	size := resp.ContentLength
	if size < 0 {
		size = UnknownSize
	}

	logger.Debugf("Regular GET request successful, content-length=%d", size)

	return ResourceDescriptor{
		URI:            uri,
		TotalSize:      size,
		SuggestedName:  httpPkg.GetFilename(resp),
		SupportsRanges: false,
		Integrity:      integrity.FromHeaders(resp.Header),
	}, nil
}

func acceptsRanges(h http.Header) bool {
	v := strings.TrimSpace(h.Get("Accept-Ranges"))
	return v != "" && !strings.EqualFold(v, "none")
}
