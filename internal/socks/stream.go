package socks

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// minWait is the shortest budget Await will grant a reply.
const minWait = 10 * time.Millisecond

// Stream is a connection whose reads go through a buffer, so a reply can be
// awaited without consuming it.
type Stream struct {
	net.Conn
	reader *bufio.Reader
}

func NewStream(conn net.Conn) *Stream {
	return &Stream{Conn: conn, reader: bufio.NewReaderSize(conn, 512)}
}

func (s *Stream) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

// Buffered reports how many bytes were read from the connection but not yet
// returned by Read.
func (s *Stream) Buffered() int {
	return s.reader.Buffered()
}

// Await blocks until at least one byte can be read or timeout elapses, in
// which case ErrTimeout is returned. The read deadline stays armed so the
// reply read that follows is bounded by the same budget.
func (s *Stream) Await(timeout time.Duration) error {
	if s.reader.Buffered() > 0 {
		return nil
	}
	if timeout < minWait {
		timeout = minWait
	}
	if err := s.Conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	if _, err := s.reader.Peek(1); err != nil {
		if isTimeout(err) {
			return ErrTimeout
		}
		return err
	}
	return nil
}

// ReadReply awaits a reply and reads exactly len(p) bytes of it.
func (s *Stream) ReadReply(p []byte, timeout time.Duration) error {
	if err := s.Await(timeout); err != nil {
		return err
	}
	if _, err := io.ReadFull(s.reader, p); err != nil {
		if isTimeout(err) {
			return ErrTimeout
		}
		return err
	}
	return nil
}

// CloseWrite half-closes the underlying connection when it supports it.
func (s *Stream) CloseWrite() error {
	if cw, ok := s.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
