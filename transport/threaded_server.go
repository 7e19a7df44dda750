package transport

import (
	"net"
	"time"

	"github.com/minidomo/p0p"
	"github.com/minidomo/p0p/server"
)

// ThreadedServer is the multi-goroutine server driver: a pool of reader
// goroutines sharing one *net.UDPConn, plus a separate ticker goroutine
// for idle reaping. Go's net package allows concurrent reads on one UDP
// socket, so no additional demultiplexing goroutine is needed the way
// package client's single-peer socket works.
type ThreadedServer struct {
	conn   *net.UDPConn
	server *server.Server
}

// NewThreadedServer wraps a bound, unconnected UDP socket.
func NewThreadedServer(conn *net.UDPConn) *ThreadedServer {
	return &ThreadedServer{conn: conn}
}

// Attach binds the driver to the Server it serves.
func (t *ThreadedServer) Attach(s *server.Server) { t.server = s }

func (t *ThreadedServer) SendTo(addr net.Addr, b []byte) error {
	_, err := t.conn.WriteTo(b, addr)
	return err
}

// Serve starts workers reader goroutines and one reap ticker goroutine.
// It returns immediately; callers block on whatever signals shutdown
// (e.g. stdin) and then call Stop.
func (t *ThreadedServer) Serve(workers int, reapInterval time.Duration) {
	for i := 0; i < workers; i++ {
		go t.worker()
	}
	go t.reapLoop(reapInterval)
}

func (t *ThreadedServer) worker() {
	buf := make([]byte, p0p.MaxPacketSize)
	for {
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		b := make([]byte, n)
		copy(b, buf[:n])
		t.server.HandlePacket(b, addr, time.Now())
	}
}

func (t *ThreadedServer) reapLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if t.server.IsClosed() {
			return
		}
		t.server.ReapIdle(time.Now())
	}
}

// Stop runs the server's graceful-shutdown sequence and closes the
// socket, which unblocks every worker's pending ReadFrom.
func (t *ThreadedServer) Stop() {
	t.server.Close()
	_ = t.conn.Close()
}
