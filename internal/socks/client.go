package socks

import (
	"context"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
)

// Client negotiates a CONNECT tunnel with an upstream SOCKS proxy.
type Client struct {
	Version  Version
	Username string
	Password string
	// Timeout bounds every reply wait.
	Timeout  time.Duration
	Resolver Resolver
}

func (c *Client) resolver() Resolver {
	if c.Resolver == nil {
		return defaultResolver
	}
	return c.Resolver
}

var defaultResolver = &DNSResolver{}

// Handshake runs the handshake for c.Version over s, asking the proxy to
// connect to host:port. On success the read deadline of s is cleared and
// the stream is ready to carry tunnel bytes.
func (c *Client) Handshake(ctx context.Context, s *Stream, host string, port uint16) error {
	var err error
	switch c.Version {
	case SOCKS4:
		err = c.socks4(ctx, s, host, port)
	case SOCKS5:
		err = c.socks5(ctx, s, host, port)
	default:
		return fmt.Errorf("handshake not supported for %v", c.Version)
	}
	if err != nil {
		return err
	}
	return s.SetDeadline(time.Time{})
}

func (c *Client) socks4(ctx context.Context, s *Stream, host string, port uint16) error {
	if AddressType(host) == RequestAtypIPV6 {
		return fmt.Errorf("%w: socks4 cannot reach %s", ErrUnsupportedAddress, host)
	}
	ip, err := c.resolver().Resolve(ctx, "ip4", host)
	if err != nil {
		return err
	}

	req, err := Socks4Request(ip, port, c.Username)
	if err != nil {
		return err
	}
	if err = c.write(s, req); err != nil {
		return err
	}

	/*
		+----+----+----+----+----+----+----+----+
		| VN | CD | DSTPORT |      DSTIP        |
		+----+----+----+----+----+----+----+----+
		   1    1      2              4
	*/
	var reply [8]byte
	if err = s.ReadReply(reply[:], c.Timeout); err != nil {
		return fmt.Errorf("read socks4 reply: %w", err)
	}
	if reply[1] != Socks4Granted {
		return &ReplyError{Version: SOCKS4VERSION, Code: reply[1]}
	}
	return nil
}

func (c *Client) socks5(ctx context.Context, s *Stream, host string, port uint16) error {
	hasCredentials := c.Username != "" && c.Password != ""
	method := MethodNoAuth
	if hasCredentials {
		method = MethodUserPass
	}
	if err := c.write(s, Socks5Greeting(method)); err != nil {
		return err
	}

	/*
		+-----+--------+
		| VER | METHOD |
		+-----+--------+
		|  1  |   1    |
		+-----+--------+
	*/
	var reply [2]byte
	if err := s.ReadReply(reply[:], c.Timeout); err != nil {
		return fmt.Errorf("read socks5 method selection: %w", err)
	}
	switch reply[1] {
	case MethodNoAuth:
	case MethodUserPass:
		if !hasCredentials {
			return &ReplyError{Version: SOCKS5VERSION, Code: reply[1], Method: true}
		}
		if err := c.auth(s); err != nil {
			return err
		}
	default:
		return &ReplyError{Version: SOCKS5VERSION, Code: reply[1], Method: true}
	}

	// Names are resolved here so the request always carries an IP address.
	if AddressType(host) == RequestAtypDomainname {
		ip, err := c.resolver().Resolve(ctx, "ip", host)
		if err != nil {
			return err
		}
		host = ip.String()
	}
	req, err := Socks5ConnectRequest(AddressType(host), host, port)
	if err != nil {
		return err
	}
	if err = c.write(s, req); err != nil {
		return err
	}
	return c.readConnectReply(s)
}

func (c *Client) auth(s *Stream) error {
	req, err := Socks5AuthRequest(c.Username, c.Password)
	if err != nil {
		return err
	}
	if err = c.write(s, req); err != nil {
		return err
	}

	/*
		+-----+--------+
		| VER | STATUS |
		+-----+--------+
		|  1  |   1    |
		+-----+--------+
	*/
	var reply [2]byte
	if err = s.ReadReply(reply[:], c.Timeout); err != nil {
		return fmt.Errorf("read socks5 auth reply: %w", err)
	}
	if reply[1] != Succeeded {
		log.Debugf("socks5 auth rejected with status 0x%02x", reply[1])
		return ErrAuthFailed
	}
	return nil
}

/*
	+----+-----+-------+------+----------+----------+
	|VER | REP |  RSV  | ATYP | BND.ADDR | BND.PORT |
	+----+-----+-------+------+----------+----------+
	| 1  |  1  | X'00' |  1   | Variable |    2     |
	+----+-----+-------+------+----------+----------+
*/
func (c *Client) readConnectReply(s *Stream) error {
	buf := bufPool512.Get().([]byte)
	defer bufPool512.Put(buf)

	if err := s.ReadReply(buf[:5], c.Timeout); err != nil {
		return fmt.Errorf("read socks5 reply: %w", err)
	}
	// Only REP decides the outcome; VER and BND.ADDR are skipped best effort.
	if buf[1] != Succeeded {
		return &ReplyError{Version: SOCKS5VERSION, Code: buf[1]}
	}
	if buf[0] != SOCKS5VERSION {
		log.Debugf("socks5 reply carries version %d", buf[0])
	}

	n, err := socks5BoundAddrLen(buf[3], buf[4])
	if err != nil {
		// Without a known ATYP the bound address length is unknown, so drop
		// whatever the proxy sent along with the reply.
		log.Debugf("skip socks5 bound address: %v", err)
		_, _ = s.reader.Discard(s.Buffered())
		return nil
	}
	// The first byte of BND.ADDR was part of the five already read.
	if err = s.ReadReply(buf[:n-1], c.Timeout); err != nil {
		return fmt.Errorf("read socks5 bound address: %w", err)
	}
	return nil
}

func (c *Client) write(s *Stream, b []byte) error {
	if c.Timeout > 0 {
		if err := s.SetWriteDeadline(time.Now().Add(c.Timeout)); err != nil {
			return err
		}
	}
	if _, err := s.Write(b); err != nil {
		return fmt.Errorf("write to proxy %v: %w", s.RemoteAddr(), err)
	}
	return nil
}

// Dial opens a connection to the proxy at addr bounded by timeout.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Stream, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewStream(conn), nil
}
