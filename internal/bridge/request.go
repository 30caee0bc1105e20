package bridge

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

var errMalformedRequest = errors.New("malformed request line")

// request is what the handler needs from the client's first line.
type request struct {
	method  string
	target  string
	version string
	host    string
	port    uint16
}

func (r *request) isConnect() bool {
	return strings.EqualFold(r.method, "CONNECT")
}

// parseRequest reads `METHOD TARGET VERSION` from the head of raw.
func parseRequest(raw []byte) (*request, error) {
	line := raw
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(strings.TrimRight(string(line), "\r"))
	if len(fields) < 3 {
		return nil, fmt.Errorf("%w: %q", errMalformedRequest, line)
	}

	req := &request{
		method:  fields[0],
		target:  fields[1],
		version: strings.TrimRight(fields[2], "\r"),
	}
	if req.target == "" || req.version == "" {
		return nil, errMalformedRequest
	}

	host, port, err := parseTarget(req.target)
	if err != nil {
		return nil, err
	}
	req.host, req.port = host, port
	return req, nil
}

// parseTarget accepts authority form (host:port) or an absolute URI.
func parseTarget(target string) (string, uint16, error) {
	if strings.Contains(target, ":") && !strings.Contains(target, "://") {
		host, portStr, err := net.SplitHostPort(target)
		if err != nil {
			return "", 0, fmt.Errorf("%w: %v", errMalformedRequest, err)
		}
		port, err := parsePort(portStr)
		if err != nil {
			return "", 0, err
		}
		return host, port, nil
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", errMalformedRequest, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", 0, fmt.Errorf("%w: no host in %q", errMalformedRequest, target)
	}
	portStr := u.Port()
	if portStr == "" {
		switch strings.ToLower(u.Scheme) {
		case "http", "ws":
			portStr = "80"
		case "https", "wss":
			portStr = "443"
		default:
			return "", 0, fmt.Errorf("%w: no port in %q", errMalformedRequest, target)
		}
	}
	port, err := parsePort(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

var (
	headerEnd = []byte("\r\n\r\n")
	crlf      = []byte("\r\n")
)

// hopHeaders keep a client connection open across requests; forwarded
// requests drop them so the connection serves a single target.
var hopHeaders = []string{"connection", "proxy-connection", "keep-alive"}

// closeHead rewrites a forwarded request head so the target ends the
// connection after its response. Bytes after the head are left alone.
func closeHead(raw []byte) ([]byte, error) {
	end := bytes.Index(raw, headerEnd)
	if end < 0 {
		return nil, fmt.Errorf("%w: header block not terminated", errMalformedRequest)
	}
	lines := bytes.Split(raw[:end], crlf)

	out := make([]byte, 0, len(raw)+len("Connection: close\r\n"))
	out = append(out, lines[0]...)
	out = append(out, crlf...)
	for _, line := range lines[1:] {
		if isHopHeader(line) {
			continue
		}
		out = append(out, line...)
		out = append(out, crlf...)
	}
	out = append(out, "Connection: close\r\n\r\n"...)
	return append(out, raw[end+len(headerEnd):]...), nil
}

func isHopHeader(line []byte) bool {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return false
	}
	name := strings.ToLower(strings.TrimSpace(string(line[:i])))
	for _, h := range hopHeaders {
		if name == h {
			return true
		}
	}
	return false
}

func parsePort(s string) (uint16, error) {
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		return 0, fmt.Errorf("%w: bad port %q", errMalformedRequest, s)
	}
	return uint16(p), nil
}
