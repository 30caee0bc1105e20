package socks

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

var (
	ErrTimeout            = errors.New("socks: timed out waiting for proxy response")
	ErrAuthFailed         = errors.New("socks: proxy rejected credentials")
	ErrInvalidResponse    = errors.New("socks: invalid proxy response")
	ErrUnsupportedAddress = errors.New("socks: unsupported destination address")
)

// ReplyError is a well-formed reply in which the proxy refused the request.
// Method is set when the refusal came from method selection, in which case
// Code is the method the proxy picked.
type ReplyError struct {
	Version uint8
	Code    uint8
	Method  bool
}

func (e *ReplyError) Error() string {
	if e.Method {
		return fmt.Sprintf("socks%d: no acceptable auth method (0x%02x)", e.Version, e.Code)
	}
	replies := socks5Replies
	if e.Version == SOCKS4VERSION {
		replies = socks4Replies
	}
	if reason, ok := replies[e.Code]; ok {
		return fmt.Sprintf("socks%d: request rejected: %s", e.Version, reason)
	}
	return fmt.Sprintf("socks%d: request rejected with code 0x%02x", e.Version, e.Code)
}

// ResolveError wraps a failed lookup of the destination host.
type ResolveError struct {
	Host string
	Err  error
}

func (e *ResolveError) Error() string { return "resolve " + e.Host + ": " + e.Err.Error() }

func (e *ResolveError) Unwrap() error { return e.Err }

// Outcome is the classified result of a tunnel attempt.
type Outcome int

const (
	Success Outcome = iota
	OutcomeHostUnreachable
	OutcomeConnectionRefused
	OutcomeConnectionReset
	OutcomeAccessDenied
	OutcomeAuthFailed
	OutcomeTimeout
	OutcomeConnectionError
	OutcomeInvalidProxyResponse
	OutcomeUnknownError
)

var outcomeNames = [...]string{
	Success:                     "Success",
	OutcomeHostUnreachable:      "HostUnreachable",
	OutcomeConnectionRefused:    "ConnectionRefused",
	OutcomeConnectionReset:      "ConnectionReset",
	OutcomeAccessDenied:         "AccessDenied",
	OutcomeAuthFailed:           "AuthenticationError",
	OutcomeTimeout:              "TimedOut",
	OutcomeConnectionError:      "ConnectionError",
	OutcomeInvalidProxyResponse: "InvalidProxyResponse",
	OutcomeUnknownError:         "UnknownError",
}

func (o Outcome) String() string {
	if o >= 0 && int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Classify maps an error returned by a dial or handshake to an Outcome.
func Classify(err error) Outcome {
	if err == nil {
		return Success
	}

	var replyErr *ReplyError
	var resolveErr *ResolveError
	var netErr net.Error
	switch {
	case errors.Is(err, ErrAuthFailed):
		return OutcomeAuthFailed
	case errors.Is(err, ErrInvalidResponse):
		return OutcomeInvalidProxyResponse
	case errors.Is(err, ErrUnsupportedAddress):
		return OutcomeUnknownError
	case errors.As(err, &replyErr):
		return OutcomeConnectionRefused
	case errors.As(err, &resolveErr):
		// A target that does not resolve is reported as unreachable (502), not as a timeout.
		return OutcomeHostUnreachable
	case errors.Is(err, ErrTimeout), errors.Is(err, os.ErrDeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return OutcomeConnectionRefused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return OutcomeConnectionReset
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return OutcomeHostUnreachable
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return OutcomeAccessDenied
	case errors.As(err, &netErr) && netErr.Timeout():
		return OutcomeTimeout
	}
	return OutcomeConnectionError
}
