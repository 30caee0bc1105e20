package bridge

import (
	"bytes"
	"context"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.io/kevin-rd/k8s-tools/http2socks/internal/metrics"
	"github.io/kevin-rd/k8s-tools/http2socks/internal/socks"
)

const maxRequestSize = 8192

// session is one accepted client connection and, once dialed, its upstream.
type session struct {
	id       string
	inbound  *socks.Stream
	outbound *socks.Stream
	request  *request
	head     []byte
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	upstream := s.client.Version.String()
	metrics.SessionGauge.WithLabelValues(upstream).Inc()
	metrics.SessionCounter.WithLabelValues(upstream).Inc()
	defer metrics.SessionGauge.WithLabelValues(upstream).Dec()

	sess := &session{
		id:      uuid.NewString(),
		inbound: socks.NewStream(conn),
	}
	logger := log.WithFields(log.Fields{"session": sess.id, "client": conn.RemoteAddr().String()})

	if err := s.readRequest(sess); err != nil {
		logger.Debugf("abandon connection: %v", err)
		_ = conn.Close()
		return
	}
	logger = logger.WithField("target", net.JoinHostPort(sess.request.host, strconv.Itoa(int(sess.request.port))))

	outcome := s.open(ctx, sess, logger)
	metrics.OutcomeCounter.WithLabelValues(upstream, outcome.String()).Inc()

	if outcome != socks.Success {
		s.reply(sess, outcome, logger)
		_ = conn.Close()
		return
	}

	if sess.request.isConnect() {
		if !s.reply(sess, outcome, logger) {
			_ = conn.Close()
			_ = sess.outbound.Close()
			return
		}
	} else if _, err := sess.outbound.Write(sess.head); err != nil {
		logger.Warnf("forward request head: %v", err)
		_ = conn.Close()
		_ = sess.outbound.Close()
		return
	}

	logger.Debug("tunnel established")
	relay(sess.inbound, sess.outbound, s.timeout)
	logger.Debug("tunnel closed")
}

// readRequest reads the initial request of up to maxRequestSize bytes and
// parses its first line. Requests other than CONNECT are read through the
// end of their header block and prepared for forwarding.
func (s *Server) readRequest(sess *session) error {
	buf := make([]byte, maxRequestSize)
	if s.timeout > 0 {
		_ = sess.inbound.SetReadDeadline(time.Now().Add(s.timeout))
	}
	n, err := sess.inbound.Read(buf)
	if n == 0 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	_ = sess.inbound.SetReadDeadline(time.Time{})

	req, err := parseRequest(buf[:n])
	if err != nil {
		return err
	}
	sess.request = req
	if req.isConnect() {
		sess.head = buf[:n]
		return nil
	}

	// A forwarded request needs its whole header block to be rewritten.
	for !bytes.Contains(buf[:n], headerEnd) && n < len(buf) {
		if s.timeout > 0 {
			_ = sess.inbound.SetReadDeadline(time.Now().Add(s.timeout))
		}
		m, err := sess.inbound.Read(buf[n:])
		n += m
		if err != nil {
			return err
		}
	}
	_ = sess.inbound.SetReadDeadline(time.Time{})
	sess.head, err = closeHead(buf[:n])
	return err
}

// open dials the upstream proxy and negotiates the tunnel.
func (s *Server) open(ctx context.Context, sess *session, logger *log.Entry) socks.Outcome {
	outbound, err := socks.Dial(ctx, s.upstream, s.timeout)
	if err != nil {
		logger.Warnf("fail to connect proxy %s: %v", s.upstream, err)
		return socks.OutcomeConnectionError
	}
	sess.outbound = outbound

	err = s.client.Handshake(ctx, outbound, sess.request.host, sess.request.port)
	outcome := socks.Classify(err)
	if err != nil {
		logger.Warnf("fail in handshake (%s): %v", outcome, err)
		_ = outbound.Close()
	}
	return outcome
}

// reply writes the status line for outcome. It reports whether the write
// went through.
func (s *Server) reply(sess *session, outcome socks.Outcome, logger *log.Entry) bool {
	if s.timeout > 0 {
		_ = sess.inbound.SetWriteDeadline(time.Now().Add(s.timeout))
	}
	if _, err := sess.inbound.Write([]byte(statusLine(sess.request.version, outcome))); err != nil {
		logger.Debugf("fail in reply: %v", err)
		return false
	}
	_ = sess.inbound.SetWriteDeadline(time.Time{})
	return true
}
