package bridge

import (
	"errors"
	"testing"

	"github.io/kevin-rd/k8s-tools/http2socks/internal/socks"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		method  string
		version string
		host    string
		port    uint16
	}{
		{"connect", "CONNECT example.com:443 HTTP/1.1\r\nHost: example.com:443\r\n\r\n", "CONNECT", "HTTP/1.1", "example.com", 443},
		{"connect ipv4", "CONNECT 10.0.0.1:8080 HTTP/1.0\r\n\r\n", "CONNECT", "HTTP/1.0", "10.0.0.1", 8080},
		{"connect ipv6", "CONNECT [::1]:22 HTTP/1.1\r\n\r\n", "CONNECT", "HTTP/1.1", "::1", 22},
		{"absolute uri", "GET http://example.com/index.html HTTP/1.1\r\n\r\n", "GET", "HTTP/1.1", "example.com", 80},
		{"absolute uri with port", "GET http://example.com:8081/a?b=c HTTP/1.1\r\n\r\n", "GET", "HTTP/1.1", "example.com", 8081},
		{"https uri", "CONNECT https://secure.test HTTP/1.1\r\n\r\n", "CONNECT", "HTTP/1.1", "secure.test", 443},
		{"bare line", "CONNECT a.test:1 HTTP/1.1", "CONNECT", "HTTP/1.1", "a.test", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := parseRequest([]byte(tt.raw))
			if err != nil {
				t.Fatalf("parseRequest: %v", err)
			}
			if req.method != tt.method || req.version != tt.version || req.host != tt.host || req.port != tt.port {
				t.Errorf("got %s %s:%d %s, want %s %s:%d %s",
					req.method, req.host, req.port, req.version, tt.method, tt.host, tt.port, tt.version)
			}
		})
	}
}

func TestParseRequestMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"\r\n",
		"CONNECT\r\n",
		"CONNECT example.com:443\r\n",
		"CONNECT example.com:http HTTP/1.1\r\n",
		"CONNECT example.com:70000 HTTP/1.1\r\n",
		"GET /relative HTTP/1.1\r\n",
		"GET ftp://files.test/x HTTP/1.1\r\n",
	} {
		if _, err := parseRequest([]byte(raw)); !errors.Is(err, errMalformedRequest) {
			t.Errorf("parseRequest(%q) err = %v, want errMalformedRequest", raw, err)
		}
	}
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		outcome socks.Outcome
		want    string
	}{
		{socks.Success, "HTTP/1.1 200 Connection established\r\n\r\n"},
		{socks.OutcomeHostUnreachable, "HTTP/1.1 502 Bad Gateway\r\n\r\n"},
		{socks.OutcomeConnectionRefused, "HTTP/1.1 502 Bad Gateway\r\n\r\n"},
		{socks.OutcomeConnectionReset, "HTTP/1.1 502 Bad Gateway\r\n\r\n"},
		{socks.OutcomeAccessDenied, "HTTP/1.1 401 Unauthorized\r\n\r\n"},
		{socks.OutcomeAuthFailed, "HTTP/1.1 511 Network Authentication Required\r\n\r\n"},
		{socks.OutcomeTimeout, "HTTP/1.1 408 Request Timeout\r\n\r\n"},
		{socks.OutcomeConnectionError, "HTTP/1.1 408 Request Timeout\r\n\r\n"},
		{socks.OutcomeUnknownError, "HTTP/1.1 500 Internal Server Error\r\nX-Proxy-Error-Type: UnknownError\r\n\r\n"},
		{socks.OutcomeInvalidProxyResponse, "HTTP/1.1 500 Internal Server Error\r\nX-Proxy-Error-Type: InvalidProxyResponse\r\n\r\n"},
	}
	for _, tt := range tests {
		if got := statusLine("HTTP/1.1", tt.outcome); got != tt.want {
			t.Errorf("statusLine(%v) = %q, want %q", tt.outcome, got, tt.want)
		}
	}
}

func TestCloseHead(t *testing.T) {
	raw := "GET http://a.test/x HTTP/1.1\r\n" +
		"Host: a.test\r\n" +
		"Proxy-Connection: keep-alive\r\n" +
		"connection: Keep-Alive\r\n" +
		"Keep-Alive: timeout=5\r\n" +
		"Content-Length: 4\r\n" +
		"\r\n" +
		"body"
	got, err := closeHead([]byte(raw))
	if err != nil {
		t.Fatalf("closeHead: %v", err)
	}
	want := "GET http://a.test/x HTTP/1.1\r\n" +
		"Host: a.test\r\n" +
		"Content-Length: 4\r\n" +
		"Connection: close\r\n" +
		"\r\n" +
		"body"
	if string(got) != want {
		t.Fatalf("closeHead =\n%q\nwant\n%q", got, want)
	}

	if _, err = closeHead([]byte("GET http://a.test/ HTTP/1.1\r\nHost: a.test\r\n")); !errors.Is(err, errMalformedRequest) {
		t.Errorf("unterminated head: err = %v", err)
	}
}
