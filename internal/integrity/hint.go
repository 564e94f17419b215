package integrity

import (
	"net/http"
	"strings"
)

// Algorithm names the digest(s) a server advertised for a resource.
type Algorithm string

const (
	None      Algorithm = ""
	MD5       Algorithm = "MD5"
	CRC32C    Algorithm = "CRC32C"
	MD5CRC32C Algorithm = "MD5+CRC32C"
)

const (
	headerContentMD5 = "Content-MD5"
	headerGoogHash   = "X-Goog-Hash"
)

// Hint is a server-advertised checksum for the complete resource. Digests are
// kept exactly as advertised (normally base64 of the raw digest bytes).
type Hint struct {
	Algorithm Algorithm `json:"algorithm"`
	MD5       string    `json:"md5,omitempty"`
	CRC32C    string    `json:"crc32c,omitempty"`
}

// Present reports whether the hint requests any verification.
func (h Hint) Present() bool {
	return h.Algorithm != None
}

// ExpectedDigest renders the expected digests for display.
func (h Hint) ExpectedDigest() string {
	switch h.Algorithm {
	case MD5:
		return "md5=" + h.MD5
	case CRC32C:
		return "crc32c=" + h.CRC32C
	case MD5CRC32C:
		return "crc32c=" + h.CRC32C + ",md5=" + h.MD5
	default:
		return ""
	}
}

// FromHeaders inspects Content-MD5 and x-goog-hash. Both headers may carry
// several values and digests may appear in any order. An algorithm named
// with an empty value is still recorded so verification can fail on it.
func FromHeaders(header http.Header) Hint {
	var (
		hint           Hint
		hasMD5, hasCRC bool
	)

	for _, v := range header.Values(headerContentMD5) {
		if v = strings.TrimSpace(v); v != "" {
			hasMD5 = true
			hint.MD5 = v
		}
	}

	for _, line := range header.Values(headerGoogHash) {
		for _, part := range strings.Split(line, ",") {
			key, value, found := strings.Cut(strings.TrimSpace(part), "=")
			if !found {
				continue
			}

			switch strings.ToLower(strings.TrimSpace(key)) {
			case "md5":
				hasMD5 = true
				if hint.MD5 == "" {
					hint.MD5 = strings.TrimSpace(value)
				}
			case "crc32c":
				hasCRC = true
				hint.CRC32C = strings.TrimSpace(value)
			}
		}
	}

	switch {
	case hasMD5 && hasCRC:
		hint.Algorithm = MD5CRC32C
	case hasMD5:
		hint.Algorithm = MD5
	case hasCRC:
		hint.Algorithm = CRC32C
	}

	return hint
}
