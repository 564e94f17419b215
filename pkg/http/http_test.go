package http_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpmod "github.com/NamanBalaji/chunkdl/pkg/http"
)

func TestGetFilename(t *testing.T) {
	tests := []struct {
		name string
		resp *http.Response
		want string
	}{
		{
			name: "Content-Disposition filename",
			resp: &http.Response{
				Header: http.Header{
					"Content-Disposition": []string{`attachment; filename="example.txt"`},
				},
				Request: &http.Request{URL: mustParseURL("http://example.com/ignored")},
			},
			want: "example.txt",
		},
		{
			name: "Content-Disposition extended filename",
			resp: &http.Response{
				Header: http.Header{
					"Content-Disposition": []string{`attachment; filename*=UTF-8''na%C3%AFve.bin`},
				},
				Request: &http.Request{URL: mustParseURL("http://example.com/ignored")},
			},
			want: "naïve.bin",
		},
		{
			name: "Content-Disposition path traversal stripped",
			resp: &http.Response{
				Header: http.Header{
					"Content-Disposition": []string{`attachment; filename="../../etc/passwd"`},
				},
				Request: &http.Request{URL: mustParseURL("http://example.com/ignored")},
			},
			want: "passwd",
		},
		{
			name: "URL path fallback",
			resp: &http.Response{
				Header:  http.Header{},
				Request: &http.Request{URL: mustParseURL("http://example.com/path/to/file.bin")},
			},
			want: "file.bin",
		},
		{
			name: "URL-encoded path is decoded",
			resp: &http.Response{
				Header:  http.Header{},
				Request: &http.Request{URL: mustParseURL("http://example.com/files/my%20report+v2.pdf")},
			},
			want: "my report v2.pdf",
		},
		{
			name: "URL query filename param",
			resp: &http.Response{
				Header:  http.Header{},
				Request: &http.Request{URL: mustParseURL("http://example.com/download?filename=data.zip")},
			},
			want: "data.zip",
		},
		{
			name: "Default when no path or param",
			resp: &http.Response{
				Header:  http.Header{},
				Request: &http.Request{URL: mustParseURL("http://example.com/")},
			},
			want: "download",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := httpmod.GetFilename(tt.resp)
			if got != tt.want {
				t.Errorf("GetFilename() = %q; want %q", got, tt.want)
			}
		})
	}
}

func mustParseURL(raw string) *url.URL {
	u, _ := url.Parse(raw)
	return u
}

func TestParseContentRangeTotal(t *testing.T) {
	size, err := httpmod.ParseContentRangeTotal("bytes 0-0/1234")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), size)

	size, err = httpmod.ParseContentRangeTotal("bytes 0-0/*")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), size)

	_, err = httpmod.ParseContentRangeTotal("garbage")
	assert.ErrorIs(t, err, httpmod.ErrInvalidContentRange)

	_, err = httpmod.ParseContentRangeTotal("bytes 0-0/abc")
	assert.ErrorIs(t, err, httpmod.ErrInvalidContentRange)
}

func TestClient_HeadSetsHeaders(t *testing.T) {
	var gotUA, gotCustom string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCustom = r.Header.Get("X-Token")
		w.Header().Set("Content-Length", "10")
	}))
	defer server.Close()

	client := httpmod.NewClient(
		httpmod.WithUserAgent("tester/1"),
		httpmod.WithHeaders(map[string]string{"X-Token": "abc"}),
	)

	resp, err := client.Head(context.Background(), server.URL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "tester/1", gotUA)
	assert.Equal(t, "abc", gotCustom)
	assert.Equal(t, int64(10), resp.ContentLength)
}

func TestClient_HeadErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := httpmod.NewClient().Head(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, httpmod.ErrResourceNotFound)
	assert.Equal(t, http.StatusNotFound, httpmod.StatusCode(err))
}

func TestClient_Range(t *testing.T) {
	data := []byte("0123456789")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/norange" {
			_, _ = w.Write(data)
			return
		}
		http.ServeContent(w, r, "f", time.Time{}, bytes.NewReader(data))
	}))
	defer server.Close()

	client := httpmod.NewClient()

	resp, err := client.Range(context.Background(), server.URL+"/f", 2, 5, nil)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, []byte("2345"), body)

	_, err = client.Range(context.Background(), server.URL+"/norange", 2, 5, nil)
	assert.True(t, errors.Is(err, httpmod.ErrRangeIgnored))
}

func TestClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	_, err := httpmod.NewClient().Get(context.Background(), addr, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, httpmod.ErrNetworkProblem)
	assert.True(t, httpmod.IsRetryable(err))
}

func TestClient_TLSVerification(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "0")
	}))
	defer server.Close()

	_, err := httpmod.NewClient().Head(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, httpmod.ErrCertificate)

	resp, err := httpmod.NewClient(httpmod.WithCheckCertificate(false)).Head(context.Background(), server.URL, nil)
	require.NoError(t, err)
	resp.Body.Close()
}
