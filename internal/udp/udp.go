// Package udp implements the hub's datagram transport: a sequential
// request/reply server loop and a small client for the power-grid peer.
package udp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/signalsfoundry/metro-datahub/internal/logging"
)

// maxDatagram bounds inbound request size. Requests are short ASCII
// command strings; anything larger is truncated by the read.
const maxDatagram = 4096

// defaultRoundTripTimeout bounds a poll round-trip when the caller's
// context carries no deadline.
const defaultRoundTripTimeout = 2 * time.Second

// Handler processes one inbound datagram and returns the reply payload,
// or nil when no reply should be sent.
type Handler func(ctx context.Context, raw []byte) []byte

// Server owns the hub's UDP listen socket. Datagrams are handled
// strictly sequentially: no two requests run concurrently.
type Server struct {
	conn   *net.UDPConn
	handle Handler
	log    logging.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Listen binds addr and returns a server ready to Serve.
func Listen(addr string, handle Handler, log logging.Logger) (*Server, error) {
	if handle == nil {
		return nil, fmt.Errorf("udp: handler is required")
	}
	if log == nil {
		log = logging.Noop()
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("udp: listen %s: %w", addr, err)
	}
	return &Server{
		conn:   conn,
		handle: handle,
		log:    log,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Addr returns the bound local address.
func (s *Server) Addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Serve runs the receive-handle-reply loop until Stop is called. The
// in-flight request always completes before the loop exits.
func (s *Server) Serve(ctx context.Context) {
	defer close(s.done)
	buf := make([]byte, maxDatagram)
	for {
		n, remote, err := s.conn.ReadFromUDP(buf)
		select {
		case <-s.stop:
			return
		default:
		}
		if err != nil {
			s.log.Warn(ctx, "udp read failed", logging.Err(err))
			continue
		}
		if n == 0 {
			// Empty datagram: the shutdown sentinel, or noise.
			continue
		}

		reply := s.handle(ctx, buf[:n])
		if reply == nil {
			continue
		}
		if _, err := s.conn.WriteToUDP(reply, remote); err != nil {
			s.log.Warn(ctx, "udp reply failed",
				logging.String("remote", remote.String()),
				logging.Err(err),
			)
		}
	}
}

// Stop signals the serve loop to exit and unblocks its pending read by
// sending an empty sentinel datagram to the server's own port, then
// waits for the loop to finish and closes the socket.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.sendSentinel()
		<-s.done
		_ = s.conn.Close()
	})
}

func (s *Server) sendSentinel() {
	local := s.Addr()
	target := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: local.Port}
	conn, err := net.DialUDP("udp", nil, target)
	if err != nil {
		// Fall back to closing the socket; the read unblocks with an error.
		_ = s.conn.Close()
		return
	}
	defer conn.Close()
	_, _ = conn.Write(nil)
}

// Client sends datagrams to a fixed peer endpoint.
type Client struct {
	mu   sync.Mutex
	conn *net.UDPConn
}

// Dial connects a client to the peer address.
func Dial(addr string) (*Client, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("udp: dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Send transmits msg fire-and-forget: no reply is awaited.
func (c *Client) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.conn.Write(msg); err != nil {
		return fmt.Errorf("udp: send: %w", err)
	}
	return nil
}

// RoundTrip transmits msg and waits for a single reply datagram,
// bounded by the context deadline or a 2s default.
func (c *Client) RoundTrip(ctx context.Context, msg []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(defaultRoundTripTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("udp: set deadline: %w", err)
	}
	if _, err := c.conn.Write(msg); err != nil {
		return nil, fmt.Errorf("udp: send: %w", err)
	}

	buf := make([]byte, maxDatagram)
	n, err := c.conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("udp: await reply: %w", err)
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, nil
}

// Close releases the client socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
