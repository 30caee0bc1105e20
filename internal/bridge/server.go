package bridge

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.io/kevin-rd/k8s-tools/http2socks/internal/socks"
)

const defaultMaxConns = 1000

// Server accepts HTTP proxy clients on a local socket and tunnels each one
// through the upstream SOCKS proxy.
type Server struct {
	listener net.Listener
	client   *socks.Client
	upstream string
	timeout  time.Duration

	sem      chan struct{}
	sessions sync.WaitGroup

	closed    atomic.Bool
	closeOnce sync.Once
	quit      chan struct{}
	loopDone  chan struct{}
}

// ServerConfig holds what Listen needs to run a Server.
type ServerConfig struct {
	// Listen is the local address, 127.0.0.1:0 when empty.
	Listen string
	// Upstream is the host:port of the SOCKS proxy.
	Upstream string
	Client   *socks.Client
	Timeout  time.Duration
	MaxConns int
}

// Listen binds the local socket and starts the accept loop.
func Listen(cfg ServerConfig) (*Server, error) {
	address := cfg.Listen
	if address == "" {
		address = "127.0.0.1:0"
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	log.Debug("bridge listening at: ", listener.Addr())

	s := &Server{
		listener: listener,
		client:   cfg.Client,
		upstream: cfg.Upstream,
		timeout:  cfg.Timeout,
		sem:      make(chan struct{}, maxConns),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	go s.serve()
	return s, nil
}

// Addr is the bound local address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) serve() {
	defer close(s.loopDone)

	// Sessions are not cancelled by Close; they drain on their own.
	ctx := context.Background()

	var backoff time.Duration
	for !s.closed.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				log.Debug("bridge listener closed")
				return
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff *= 2
			}
			if backoff > time.Second {
				backoff = time.Second
			}
			log.Warnf("fail in accept: %v; retrying in %v", err, backoff)
			select {
			case <-time.After(backoff):
			case <-s.quit:
				return
			}
			continue
		}
		backoff = 0

		// limit goroutine pool and wait for goroutine to finish
		select {
		case s.sem <- struct{}{}:
		case <-s.quit:
			_ = conn.Close()
			return
		}
		s.sessions.Add(1)

		go func(conn net.Conn) {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("panic serving %v: %v", conn.RemoteAddr(), r)
				}
				_ = conn.Close()
				s.sessions.Done()
				<-s.sem
				log.Debugf("Connection closed: %v", conn.RemoteAddr())
			}()

			log.Debugf("New connection: %v", conn.RemoteAddr())
			s.handle(ctx, conn)
		}(conn)
	}
}

// Close stops the accept loop and closes the listening socket. In-flight
// tunnels keep running. Calling Close more than once is a no-op.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.quit)
		err = s.listener.Close()
		<-s.loopDone
		log.Info("bridge listener has shut down")
	})
	return err
}

// Shutdown closes the server and waits for in-flight sessions to finish or
// ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Close()

	drained := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
