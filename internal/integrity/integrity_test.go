package integrity

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/chunkdl/internal/errors"
)

const (
	helloMD5    = "XrY7u+Ae7tCTyyK7j1rNww=="
	helloMD5Hex = "5eb63bbbe01eeed093cb22bb8f5acdc3"
	helloCRC32C = "yZRlqg=="
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFromHeaders(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		want   Hint
	}{
		{
			name:   "no checksum headers",
			header: http.Header{},
			want:   Hint{},
		},
		{
			name:   "content md5",
			header: http.Header{"Content-Md5": {helloMD5}},
			want:   Hint{Algorithm: MD5, MD5: helloMD5},
		},
		{
			name:   "goog hash crc32c only",
			header: http.Header{"X-Goog-Hash": {"crc32c=" + helloCRC32C}},
			want:   Hint{Algorithm: CRC32C, CRC32C: helloCRC32C},
		},
		{
			name:   "goog hash md5 only",
			header: http.Header{"X-Goog-Hash": {"md5=" + helloMD5}},
			want:   Hint{Algorithm: MD5, MD5: helloMD5},
		},
		{
			name:   "goog hash both in one value",
			header: http.Header{"X-Goog-Hash": {"crc32c=" + helloCRC32C + ",md5=" + helloMD5}},
			want:   Hint{Algorithm: MD5CRC32C, MD5: helloMD5, CRC32C: helloCRC32C},
		},
		{
			name:   "goog hash both reversed order",
			header: http.Header{"X-Goog-Hash": {"md5=" + helloMD5 + ", crc32c=" + helloCRC32C}},
			want:   Hint{Algorithm: MD5CRC32C, MD5: helloMD5, CRC32C: helloCRC32C},
		},
		{
			name:   "goog hash as repeated headers",
			header: http.Header{"X-Goog-Hash": {"md5=" + helloMD5, "crc32c=" + helloCRC32C}},
			want:   Hint{Algorithm: MD5CRC32C, MD5: helloMD5, CRC32C: helloCRC32C},
		},
		{
			name:   "content md5 and goog crc32c",
			header: http.Header{"Content-Md5": {helloMD5}, "X-Goog-Hash": {"crc32c=" + helloCRC32C}},
			want:   Hint{Algorithm: MD5CRC32C, MD5: helloMD5, CRC32C: helloCRC32C},
		},
		{
			name:   "named algorithm with empty value",
			header: http.Header{"X-Goog-Hash": {"crc32c=,md5=" + helloMD5}},
			want:   Hint{Algorithm: MD5CRC32C, MD5: helloMD5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromHeaders(tt.header))
		})
	}
}

func TestCompute(t *testing.T) {
	d, err := Compute(strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, helloMD5, d.MD5)
	assert.Equal(t, helloCRC32C, d.CRC32C)
}

func TestVerify(t *testing.T) {
	path := writeFile(t, "hello world")

	tests := []struct {
		name    string
		hint    Hint
		wantOK  bool
		wantErr bool
	}{
		{"no hint", Hint{}, true, false},
		{"md5 match", Hint{Algorithm: MD5, MD5: helloMD5}, true, false},
		{"md5 hex match", Hint{Algorithm: MD5, MD5: helloMD5Hex}, true, false},
		{"md5 mismatch", Hint{Algorithm: MD5, MD5: "AAAAAAAAAAAAAAAAAAAAAA=="}, false, true},
		{"crc32c match", Hint{Algorithm: CRC32C, CRC32C: helloCRC32C}, true, false},
		{"crc32c mismatch", Hint{Algorithm: CRC32C, CRC32C: "AAAAAA=="}, false, true},
		{"both match", Hint{Algorithm: MD5CRC32C, MD5: helloMD5, CRC32C: helloCRC32C}, true, false},
		{"both with crc mismatch", Hint{Algorithm: MD5CRC32C, MD5: helloMD5, CRC32C: "AAAAAA=="}, false, true},
		{"both with crc missing", Hint{Algorithm: MD5CRC32C, MD5: helloMD5}, false, true},
		{"both with md5 missing", Hint{Algorithm: MD5CRC32C, CRC32C: helloCRC32C}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Verify(path, tt.hint)
			assert.Equal(t, tt.wantOK, res.OK)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrIntegrityMismatch)
				assert.NotEmpty(t, res.Computed)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestVerify_CorruptedFileDetected(t *testing.T) {
	path := writeFile(t, "hello worle")

	res, err := Verify(path, Hint{Algorithm: MD5, MD5: helloMD5})
	require.Error(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "md5="+helloMD5, res.Expected)
	assert.NotEqual(t, "md5="+helloMD5, res.Computed)

	var de *errors.DownloadError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, helloMD5, de.Details["expected"])
}

func TestVerify_MissingFile(t *testing.T) {
	_, err := Verify(filepath.Join(t.TempDir(), "nope"), Hint{Algorithm: MD5, MD5: helloMD5})
	require.Error(t, err)
	assert.NotErrorIs(t, err, errors.ErrIntegrityMismatch)
}

func TestHint_ExpectedDigest(t *testing.T) {
	assert.Equal(t, "", Hint{}.ExpectedDigest())
	assert.Equal(t, "md5=x", Hint{Algorithm: MD5, MD5: "x"}.ExpectedDigest())
	assert.Equal(t, "crc32c=y,md5=x", Hint{Algorithm: MD5CRC32C, MD5: "x", CRC32C: "y"}.ExpectedDigest())
	assert.False(t, Hint{}.Present())
	assert.True(t, Hint{Algorithm: CRC32C}.Present())
}
