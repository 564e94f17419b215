package integrity

import (
	"crypto/md5" //nolint:gosec // advertised by the server, not used for security
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"strings"

	"github.com/NamanBalaji/chunkdl/internal/errors"
	"github.com/NamanBalaji/chunkdl/internal/logger"
)

const readBlockSize = 1024 * 1024

const missingDigest = "<missing>"

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Digests holds the computed checksums of a file, base64 encoded.
type Digests struct {
	MD5    string
	CRC32C string
}

// Result describes one verification run.
type Result struct {
	Algorithm Algorithm
	Expected  string
	Computed  string
	OK        bool
}

// Compute streams r once through MD5 and CRC32C.
func Compute(r io.Reader) (Digests, error) {
	md5Hash := md5.New() //nolint:gosec
	crcHash := crc32.New(castagnoli)

	buf := make([]byte, readBlockSize)
	if _, err := io.CopyBuffer(io.MultiWriter(md5Hash, crcHash), r, buf); err != nil {
		return Digests{}, err
	}

	crcBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(crcBytes, crcHash.Sum32())

	return Digests{
		MD5:    base64.StdEncoding.EncodeToString(md5Hash.Sum(nil)),
		CRC32C: base64.StdEncoding.EncodeToString(crcBytes),
	}, nil
}

// ComputeFile computes the digests of the file at path.
func ComputeFile(path string) (Digests, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digests{}, err
	}
	defer f.Close()

	return Compute(f)
}

// Verify checks the file at path against hint. Every algorithm named by the
// hint is required independently. A mismatch is returned as an
// IntegrityMismatch error alongside the filled Result.
func Verify(path string, hint Hint) (Result, error) {
	res := Result{Algorithm: hint.Algorithm, Expected: hint.ExpectedDigest(), OK: true}
	if !hint.Present() {
		return res, nil
	}

	digests, err := ComputeFile(path)
	if err != nil {
		return res, fmt.Errorf("failed to hash %s: %w", path, err)
	}

	var computed []string
	var failures []error

	if hint.Algorithm == CRC32C || hint.Algorithm == MD5CRC32C {
		computed = append(computed, "crc32c="+digests.CRC32C)
		if !digestMatches(hint.CRC32C, digests.CRC32C) {
			failures = append(failures, errors.NewIntegrityMismatch(path, string(CRC32C), orMissing(hint.CRC32C), digests.CRC32C))
		}
	}

	if hint.Algorithm == MD5 || hint.Algorithm == MD5CRC32C {
		computed = append(computed, "md5="+digests.MD5)
		if !digestMatches(hint.MD5, digests.MD5) {
			failures = append(failures, errors.NewIntegrityMismatch(path, string(MD5), orMissing(hint.MD5), digests.MD5))
		}
	}

	res.Computed = strings.Join(computed, ",")

	if len(failures) > 0 {
		res.OK = false
		logger.Warnf("Integrity check failed for %s: expected %s, computed %s", path, res.Expected, res.Computed)

		return res, errors.Join(failures...)
	}

	logger.Debugf("%s integrity check passed for %s", hint.Algorithm, path)

	return res, nil
}

// digestMatches compares an advertised digest with a computed base64 one.
// Hex encoded advertisements are accepted too.
func digestMatches(expected, computedB64 string) bool {
	if expected == "" {
		return false
	}

	if expected == computedB64 {
		return true
	}

	raw, err := base64.StdEncoding.DecodeString(computedB64)
	if err != nil {
		return false
	}

	return strings.EqualFold(expected, hex.EncodeToString(raw))
}

func orMissing(s string) string {
	if s == "" {
		return missingDigest
	}

	return s
}
