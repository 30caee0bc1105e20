package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.io/kevin-rd/k8s-tools/http2socks/internal/socks"
)

// DefaultTimeout bounds connects, handshake replies and idle relay reads.
const DefaultTimeout = 30 * time.Second

const maxCredentialLen = 255

// Options configures an Adapter.
type Options struct {
	// Host is an IP address, a host name, or host:port when Port is 0.
	Host     string
	Port     int
	Username string
	Password string
	Type     socks.Version
	Timeout  time.Duration

	Listen   string
	MaxConns int
	Resolver socks.Resolver
}

// Adapter lets HTTP proxy clients reach a SOCKS4 or SOCKS5 proxy through a
// loopback endpoint. For an HTTP upstream no listener runs and the endpoint
// is the upstream itself.
type Adapter struct {
	endpoint *url.URL
	server   *Server
}

// New validates opts and, for SOCKS upstreams, starts the local listener.
// The caller must Close the returned Adapter.
func New(ctx context.Context, opts Options) (*Adapter, error) {
	host, port, err := splitUpstream(opts.Host, opts.Port)
	if err != nil {
		return nil, err
	}

	if opts.Type == socks.HTTP {
		return &Adapter{endpoint: &url.URL{
			Scheme: "http",
			Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		}}, nil
	}
	if opts.Type != socks.SOCKS4 && opts.Type != socks.SOCKS5 {
		return nil, fmt.Errorf("unsupported proxy type %v", opts.Type)
	}

	if err = checkCredential("username", opts.Username); err != nil {
		return nil, err
	}
	if err = checkCredential("password", opts.Password); err != nil {
		return nil, err
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = &socks.DNSResolver{}
	}
	ip, err := resolver.Resolve(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("proxy host: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	server, err := Listen(ServerConfig{
		Listen:   opts.Listen,
		Upstream: net.JoinHostPort(ip.String(), strconv.Itoa(port)),
		Client: &socks.Client{
			Version:  opts.Type,
			Username: opts.Username,
			Password: opts.Password,
			Timeout:  timeout,
			Resolver: resolver,
		},
		Timeout:  timeout,
		MaxConns: opts.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	addr := server.Addr().(*net.TCPAddr)
	a := &Adapter{
		server:   server,
		endpoint: &url.URL{Scheme: "http", Host: addr.String()},
	}
	log.Infof("bridge %s -> %s://%s", a.endpoint, opts.Type, server.upstream)
	return a, nil
}

// Endpoint is the proxy URL HTTP clients should use.
func (a *Adapter) Endpoint() *url.URL {
	u := *a.endpoint
	return &u
}

// Proxy returns the endpoint for any destination.
func (a *Adapter) Proxy(*url.URL) (*url.URL, error) {
	return a.Endpoint(), nil
}

// IsBypassed is always false: every destination goes through the proxy.
func (a *Adapter) IsBypassed(*url.URL) bool {
	return false
}

// ProxyFunc adapts the adapter to http.Transport.Proxy.
func (a *Adapter) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		return a.Proxy(req.URL)
	}
}

// Close stops accepting clients. It is safe to call more than once.
func (a *Adapter) Close() error {
	if a.server == nil {
		return nil
	}
	return a.server.Close()
}

// Shutdown is Close followed by waiting for open tunnels to finish.
func (a *Adapter) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

func splitUpstream(host string, port int) (string, int, error) {
	if host == "" {
		return "", 0, errors.New("proxy host is empty")
	}
	if port == 0 {
		if !strings.Contains(host, ":") {
			return "", 0, fmt.Errorf("proxy host %q has no port", host)
		}
		h, p, err := net.SplitHostPort(host)
		if err != nil {
			return "", 0, fmt.Errorf("proxy host %q: %w", host, err)
		}
		if port, err = strconv.Atoi(strings.TrimSpace(p)); err != nil {
			return "", 0, fmt.Errorf("proxy port %q: %w", p, err)
		}
		host = h
	}
	if port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("proxy port %d out of range", port)
	}
	return host, port, nil
}

func checkCredential(name, v string) error {
	if len(v) > maxCredentialLen {
		return fmt.Errorf("%s longer than %d bytes", name, maxCredentialLen)
	}
	for i := 0; i < len(v); i++ {
		if v[i] > 0x7F {
			return fmt.Errorf("%s must be ASCII", name)
		}
	}
	return nil
}
