package bridge

import (
	"io"
	"net"
	"testing"
	"time"

	"github.io/kevin-rd/k8s-tools/http2socks/internal/socks"
)

// tcpPair returns both ends of a loopback TCP connection.
func tcpPair(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, _ := ln.Accept()
		accepted <- conn
	}()
	dialed, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	other := <-accepted
	if other == nil {
		t.Fatal("accept failed")
	}
	t.Cleanup(func() {
		_ = dialed.Close()
		_ = other.Close()
	})
	return dialed.(*net.TCPConn), other.(*net.TCPConn)
}

func readN(t *testing.T, conn net.Conn, n int) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read %d bytes: %v", n, err)
	}
	return string(buf)
}

func TestRelay(t *testing.T) {
	app, inbound := tcpPair(t)
	outbound, target := tcpPair(t)

	done := make(chan struct{})
	go func() {
		relay(socks.NewStream(inbound), socks.NewStream(outbound), 2*time.Second)
		close(done)
	}()

	if _, err := app.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	if got := readN(t, target, 4); got != "ping" {
		t.Fatalf("target got %q", got)
	}
	if _, err := target.Write([]byte("pong")); err != nil {
		t.Fatal(err)
	}
	if got := readN(t, app, 4); got != "pong" {
		t.Fatalf("app got %q", got)
	}

	// The client finishing its side must not stop the other direction.
	if err := app.CloseWrite(); err != nil {
		t.Fatal(err)
	}
	_ = target.SetReadDeadline(time.Now().Add(2 * time.Second))
	if n, err := target.Read(make([]byte, 1)); n != 0 || err != io.EOF {
		t.Fatalf("target read after client half-close = %d, %v; want EOF", n, err)
	}
	if _, err := target.Write([]byte("late reply")); err != nil {
		t.Fatal(err)
	}
	if got := readN(t, app, len("late reply")); got != "late reply" {
		t.Fatalf("app got %q", got)
	}

	select {
	case <-done:
		t.Fatal("relay finished while a direction was still open")
	default:
	}

	_ = target.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not finish after both directions ended")
	}
}

func TestRelayIdleTimeout(t *testing.T) {
	_, inbound := tcpPair(t)
	outbound, _ := tcpPair(t)

	done := make(chan struct{})
	go func() {
		relay(socks.NewStream(inbound), socks.NewStream(outbound), 50*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("idle relay was not torn down")
	}
}

func TestRelayIdleDirectionKeepsPeerOpen(t *testing.T) {
	app, inbound := tcpPair(t)
	outbound, target := tcpPair(t)

	go relay(socks.NewStream(inbound), socks.NewStream(outbound), 100*time.Millisecond)

	// The client stays silent past the idle budget while the target streams.
	sawEOF := make(chan time.Duration, 1)
	start := time.Now()
	go func() {
		_, err := target.Read(make([]byte, 1))
		if err == io.EOF {
			sawEOF <- time.Since(start)
		}
	}()
	go func() { _, _ = io.Copy(io.Discard, app) }()

	for time.Since(start) < 600*time.Millisecond {
		if _, err := target.Write([]byte("chunk")); err != nil {
			t.Fatalf("target write: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case d := <-sawEOF:
		t.Fatalf("target saw EOF after %v while still streaming", d)
	default:
	}
}
