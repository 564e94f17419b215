package http

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
)

var (
	ErrHeadNotSupported    = errors.New("HEAD method not supported by server")
	ErrRangesNotSupported  = errors.New("byte ranges not supported by server")
	ErrRangeIgnored        = errors.New("server ignored the range header")
	ErrInvalidContentRange = errors.New("invalid Content-Range header")

	ErrTimeout         = errors.New("operation timed out")
	ErrNetworkProblem  = errors.New("network-related error")
	ErrIOProblem       = errors.New("I/O error")
	ErrRequestCreation = errors.New("failed to create request")
	ErrCertificate     = errors.New("TLS certificate verification failed")

	ErrServerProblem    = errors.New("server error (5xx)")
	ErrTooManyRequests  = errors.New("too many requests (429)")
	ErrResourceNotFound = errors.New("resource not found (404)")
	ErrAccessDenied     = errors.New("access denied (403)")
	ErrAuthentication   = errors.New("authentication required (401)")
	ErrGone             = errors.New("resource gone (410)")
	ErrClientRequest    = errors.New("client error (4xx)")

	ErrUnknown       = errors.New("unknown error")
	ErrUnexpectedEOF = errors.New("unexpected EOF")
)

var retryableErrors = []error{
	ErrNetworkProblem,
	ErrServerProblem,
	ErrTooManyRequests,
	ErrTimeout,
	ErrUnexpectedEOF,
	ErrIOProblem,
}

// StatusError carries the status code of a failed response next to its class.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// ClassifyHTTPError converts an HTTP status code into an appropriate error.
func ClassifyHTTPError(statusCode int) error {
	var err error

	switch statusCode {
	case http.StatusNotFound:
		err = ErrResourceNotFound
	case http.StatusForbidden:
		err = ErrAccessDenied
	case http.StatusUnauthorized:
		err = ErrAuthentication
	case http.StatusGone:
		err = ErrGone
	case http.StatusMethodNotAllowed:
		err = ErrHeadNotSupported
	case http.StatusRequestedRangeNotSatisfiable:
		err = ErrRangesNotSupported
	case http.StatusTooManyRequests:
		err = ErrTooManyRequests
	default:
		switch {
		case statusCode >= http.StatusInternalServerError:
			err = ErrServerProblem
		case statusCode >= http.StatusBadRequest:
			err = ErrClientRequest
		default:
			return nil
		}
	}

	return &StatusError{StatusCode: statusCode, Err: err}
}

// ClassifyError categorizes a general error into a sentinel error.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrUnexpectedEOF
	}

	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) || errors.As(err, &hostErr) {
		return ErrCertificate
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrTimeout
		}

		return ErrNetworkProblem
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrNetworkProblem
	}

	return ErrUnknown
}

// IsRetryable reports whether err belongs to a transient error class.
func IsRetryable(err error) bool {
	for _, target := range retryableErrors {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

// IsFallbackError checks if the error requires fallback during probing.
func IsFallbackError(err error) bool {
	return errors.Is(err, ErrHeadNotSupported)
}

// IsRangeUnsupported reports whether a ranged request showed that the server
// cannot serve byte ranges.
func IsRangeUnsupported(err error) bool {
	return errors.Is(err, ErrRangeIgnored) || errors.Is(err, ErrRangesNotSupported)
}

// StatusCode returns the HTTP status carried by err, or zero.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}

	return 0
}
