package transport

import (
	"net"
	"time"

	"github.com/minidomo/p0p"
	"github.com/minidomo/p0p/client"
)

type clientPacket struct {
	b    []byte
	addr net.Addr
}

// EventLoopClient is the single-goroutine client driver: exactly one
// goroutine (Run) ever touches the Client's state, via a select over
// inbound packets and a reused oneshot timer. A second goroutine only
// performs the blocking socket read and forwards raw bytes over a
// channel - Go has no non-blocking recv, so this is the minimum needed to
// keep state mutation on a single goroutine. The timer itself is grounded
// on event_client.py's reused pyuv.Timer (stop, then start again, guarded
// by a single _timer_active flag rather than a lock).
type EventLoopClient struct {
	conn   *net.UDPConn
	client *client.Client

	timer *time.Timer
	armed bool

	done chan struct{}
}

func NewEventLoopClient(conn *net.UDPConn) *EventLoopClient {
	return &EventLoopClient{conn: conn, done: make(chan struct{})}
}

// Attach binds the driver to the Client it drives. Must be called once,
// after client.New and before Run.
func (e *EventLoopClient) Attach(c *client.Client) { e.client = c }

func (e *EventLoopClient) Send(packet []byte) error {
	return writePacket(e.conn, packet)
}

func (e *EventLoopClient) StartTimer(d time.Duration) {
	if d <= 0 {
		e.StopTimer()
		return
	}
	if e.armed {
		return
	}
	if e.timer == nil {
		e.timer = time.NewTimer(d)
	} else {
		drainTimer(e.timer)
		e.timer.Reset(d)
	}
	e.armed = true
}

func (e *EventLoopClient) StopTimer() {
	if e.timer != nil && e.armed {
		drainTimer(e.timer)
	}
	e.armed = false
}

func (e *EventLoopClient) SignalClose() {
	select {
	case <-e.done:
	default:
		close(e.done)
	}
	_ = e.conn.Close()
}

// Run is the event loop: it owns the socket's read results and the timer
// and is the only goroutine that ever calls into the Client. It returns
// once the session is closed.
func (e *EventLoopClient) Run() {
	reader := make(chan clientPacket, 64)
	go e.readLoop(reader)

	for {
		var timerC <-chan time.Time
		if e.armed && e.timer != nil {
			timerC = e.timer.C
		}
		select {
		case <-e.done:
			return
		case pkt, ok := <-reader:
			if !ok {
				return
			}
			e.client.OnPacket(pkt.b, pkt.addr)
		case <-timerC:
			e.armed = false
			e.client.OnTimeout()
		}
	}
}

func (e *EventLoopClient) readLoop(out chan<- clientPacket) {
	buf := make([]byte, p0p.MaxPacketSize)
	for {
		n, err := e.conn.Read(buf)
		if err != nil {
			close(out)
			return
		}
		b := make([]byte, n)
		copy(b, buf[:n])
		out <- clientPacket{b: b, addr: e.conn.RemoteAddr()}
	}
}

// drainTimer stops t and, if it had already fired, drains its channel so a
// later Reset starts clean. Mirrors the standard library's documented
// Timer.Reset idiom.
func drainTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
