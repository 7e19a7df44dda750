package transport

import (
	"net"
	"sync"
	"time"

	"github.com/minidomo/p0p"
	"github.com/minidomo/p0p/client"
)

// pollInterval is how often the threaded client's monitor goroutine
// rechecks its deadline against the clock, mirroring thread_client.py's
// timed_out(), which is itself polled rather than scheduled.
const pollInterval = 20 * time.Millisecond

// ThreadedClient is the multi-goroutine client driver: one goroutine reads
// the socket, one polls a mutex-guarded deadline, and the caller's own
// goroutine drives sends. This is the Go analogue of thread_client.py,
// which tracks a single _timestamp under a lock and has a second thread
// call timed_out() in a loop.
type ThreadedClient struct {
	conn   *net.UDPConn
	client *client.Client

	mu       sync.Mutex
	deadline time.Time
	armed    bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewThreadedClient wraps a UDP socket already connected (via
// net.DialUDP) to the server's address.
func NewThreadedClient(conn *net.UDPConn) *ThreadedClient {
	return &ThreadedClient{conn: conn, stopCh: make(chan struct{})}
}

// Attach binds the driver to the Client it drives and starts the reader
// and monitor goroutines. Must be called once, after client.New.
func (t *ThreadedClient) Attach(c *client.Client) {
	t.client = c
	go t.readLoop()
	go t.monitor()
}

// Done is closed once the session has ended, for a main goroutine to block
// on - the Go analogue of thread_client.py's wait_for_signal().
func (t *ThreadedClient) Done() <-chan struct{} { return t.stopCh }

func (t *ThreadedClient) Send(packet []byte) error {
	return writePacket(t.conn, packet)
}

func (t *ThreadedClient) StartTimer(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d <= 0 {
		t.armed = false
		return
	}
	if !t.armed {
		t.deadline = time.Now().Add(d)
		t.armed = true
	}
}

func (t *ThreadedClient) StopTimer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = false
}

func (t *ThreadedClient) SignalClose() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
		_ = t.conn.Close()
	})
}

func (t *ThreadedClient) readLoop() {
	buf := make([]byte, p0p.MaxPacketSize)
	for {
		n, err := t.conn.Read(buf)
		if err != nil {
			return
		}
		b := make([]byte, n)
		copy(b, buf[:n])
		t.client.OnPacket(b, t.conn.RemoteAddr())
	}
}

func (t *ThreadedClient) monitor() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.mu.Lock()
			expired := t.armed && time.Now().After(t.deadline)
			t.mu.Unlock()
			if expired {
				t.client.OnTimeout()
			}
		}
	}
}
