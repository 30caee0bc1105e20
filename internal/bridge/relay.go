package bridge

import (
	"errors"
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
	"github.io/kevin-rd/k8s-tools/http2socks/internal/metrics"
	"github.io/kevin-rd/k8s-tools/http2socks/internal/socks"
)

const relayBufSize = 8 << 10

// relay copies a→b on the calling goroutine and b→a on a new one. Each
// direction stops on its own. Only a clean EOF is passed on as a
// half-close; a direction that fails or idles out ends without touching its
// peer. Both streams are closed once both directions are done.
func relay(a, b *socks.Stream, idle time.Duration) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		pipe("upstream->client", a, b, idle)
	}()

	pipe("client->upstream", b, a, idle)
	<-done

	_ = a.Close()
	_ = b.Close()
}

// pipe forwards src to dst until src reports EOF or either side fails.
func pipe(direction string, dst, src *socks.Stream, idle time.Duration) {
	buf := bufPool8k.Get().([]byte)
	defer bufPool8k.Put(buf)

	counter := metrics.RelayBytes.WithLabelValues(direction)
	for {
		if idle > 0 && src.Buffered() == 0 {
			_ = src.SetReadDeadline(time.Now().Add(idle))
		}
		n, err := src.Read(buf)
		if n > 0 {
			if idle > 0 {
				_ = dst.SetWriteDeadline(time.Now().Add(idle))
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				logRelayEnd(direction, werr)
				return
			}
			counter.Add(float64(n))
		}
		if err == io.EOF {
			_ = dst.CloseWrite()
			return
		}
		if err != nil {
			logRelayEnd(direction, err)
			return
		}
	}
}

func logRelayEnd(direction string, err error) {
	if errors.Is(err, net.ErrClosed) {
		log.Debugf("copy %s stopped: %v", direction, err)
		return
	}
	log.Debugf("copy %s failed: %v", direction, err)
}
