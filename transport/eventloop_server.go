package transport

import (
	"net"
	"time"

	"github.com/minidomo/p0p"
	"github.com/minidomo/p0p/server"
)

type serverPacket struct {
	b    []byte
	addr net.Addr
}

// EventLoopServer is the single-goroutine server driver: one goroutine
// (Run) processes every inbound packet and every reap tick; a second
// goroutine only performs the blocking ReadFrom and forwards raw bytes,
// for the same reason as EventLoopClient's reader goroutine.
type EventLoopServer struct {
	conn   *net.UDPConn
	server *server.Server
	done   chan struct{}
}

func NewEventLoopServer(conn *net.UDPConn) *EventLoopServer {
	return &EventLoopServer{conn: conn, done: make(chan struct{})}
}

// Attach binds the driver to the Server it serves.
func (e *EventLoopServer) Attach(s *server.Server) { e.server = s }

func (e *EventLoopServer) SendTo(addr net.Addr, b []byte) error {
	_, err := e.conn.WriteTo(b, addr)
	return err
}

// Run is the event loop. It blocks until Stop closes the done channel.
func (e *EventLoopServer) Run(reapInterval time.Duration) {
	reader := make(chan serverPacket, 64)
	go e.readLoop(reader)

	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case pkt, ok := <-reader:
			if !ok {
				return
			}
			e.server.HandlePacket(pkt.b, pkt.addr, time.Now())
		case <-ticker.C:
			e.server.ReapIdle(time.Now())
		}
	}
}

func (e *EventLoopServer) readLoop(out chan<- serverPacket) {
	buf := make([]byte, p0p.MaxPacketSize)
	for {
		n, addr, err := e.conn.ReadFrom(buf)
		if err != nil {
			close(out)
			return
		}
		b := make([]byte, n)
		copy(b, buf[:n])
		out <- serverPacket{b: b, addr: addr}
	}
}

// Stop runs the server's graceful-shutdown sequence, closes the socket,
// and signals Run to return.
func (e *EventLoopServer) Stop() {
	e.server.Close()
	_ = e.conn.Close()
	close(e.done)
}
