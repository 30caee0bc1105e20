package bridge

import (
	"fmt"

	"github.io/kevin-rd/k8s-tools/http2socks/internal/socks"
)

// errorTypeHeader names the outcome on 500 responses.
const errorTypeHeader = "X-Proxy-Error-Type"

// statusLine renders the response for outcome, terminated by a blank line.
func statusLine(version string, outcome socks.Outcome) string {
	switch outcome {
	case socks.Success:
		return version + " 200 Connection established\r\n\r\n"
	case socks.OutcomeHostUnreachable, socks.OutcomeConnectionRefused, socks.OutcomeConnectionReset:
		return version + " 502 Bad Gateway\r\n\r\n"
	case socks.OutcomeAccessDenied:
		return version + " 401 Unauthorized\r\n\r\n"
	case socks.OutcomeAuthFailed:
		return version + " 511 Network Authentication Required\r\n\r\n"
	case socks.OutcomeUnknownError, socks.OutcomeInvalidProxyResponse:
		return fmt.Sprintf("%s 500 Internal Server Error\r\n%s: %s\r\n\r\n", version, errorTypeHeader, outcome)
	default:
		return version + " 408 Request Timeout\r\n\r\n"
	}
}
