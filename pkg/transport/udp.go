// Package transport receives sensor datagrams and feeds the ingest queue.
package transport

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
)

// Datagram is one whole received packet. The protocol has no reassembly:
// a frame either fits in a datagram or it is malformed.
type Datagram struct {
	Data     []byte
	Source   string
	Received time.Time
}

// Listener pulls datagrams off a UDP socket into a bounded channel. The
// receive loop never blocks on processing: when the channel is full the
// newly arrived datagram is dropped, since stale telemetry is worse than a
// gap.
type Listener struct {
	conn         net.PacketConn
	out          chan<- Datagram
	readTimeout  time.Duration
	maxSize      int
	log          logging.LeveledLogger
	errorHandler func(error)
	dropped      atomic.Uint64
}

type Option func(*Listener)

// WithPacketConn supplies a pre-bound socket, mainly for tests.
func WithPacketConn(conn net.PacketConn) Option {
	return func(l *Listener) {
		l.conn = conn
	}
}

func WithReadTimeout(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.readTimeout = d
		}
	}
}

func WithMaxDatagramSize(n int) Option {
	return func(l *Listener) {
		if n > 0 {
			l.maxSize = n
		}
	}
}

func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(l *Listener) {
		if f != nil {
			l.log = f.NewLogger("transport-udp")
		}
	}
}

func WithErrorHandler(fn func(error)) Option {
	return func(l *Listener) {
		if fn != nil {
			l.errorHandler = fn
		}
	}
}

// StartListener binds addr (unless a conn is supplied) and starts the
// receive loop. The loop stops when ctx is cancelled and closes the socket.
func StartListener(ctx context.Context, addr string, out chan<- Datagram, opts ...Option) (*Listener, error) {
	l := &Listener{
		out:         out,
		readTimeout: 1 * time.Second,
		maxSize:     2048,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.conn == nil {
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return nil, err
		}
		l.conn = conn
	}

	go l.run(ctx)
	return l, nil
}

// LocalAddr returns the bound socket address.
func (l *Listener) LocalAddr() net.Addr { return l.conn.LocalAddr() }

// Dropped returns how many datagrams were discarded because the queue was
// full.
func (l *Listener) Dropped() uint64 { return l.dropped.Load() }

func (l *Listener) run(ctx context.Context) {
	defer l.conn.Close()

	buf := make([]byte, l.maxSize)
	for {
		if ctx.Err() != nil {
			return
		}

		_ = l.conn.SetReadDeadline(time.Now().Add(l.readTimeout))
		n, addr, err := l.conn.ReadFrom(buf)
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			l.handleError(err)
			continue
		}
		if n == 0 {
			continue
		}

		d := Datagram{
			Data:     append([]byte(nil), buf[:n]...),
			Source:   addr.String(),
			Received: time.Now(),
		}
		select {
		case l.out <- d:
		default:
			l.dropped.Add(1)
			if l.log != nil {
				l.log.Debugf("queue full, dropped datagram from %s", d.Source)
			}
		}
	}
}

func (l *Listener) handleError(err error) {
	if l.log != nil {
		l.log.Warnf("read: %v", err)
	}
	if l.errorHandler != nil {
		l.errorHandler(err)
	}
}
