// Package client implements the client-side P0P session state machine. A
// Client drives exactly one session from the initiator's side and is
// agnostic to how its packets actually reach the wire or how its timer is
// actually scheduled - both are supplied through a Transport, so the same
// state machine serves the threaded and event-loop drivers in package
// transport.
package client

import (
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/minidomo/p0p"
)

// State is one of the four states a client session moves through.
type State int

const (
	WaitingForHello State = iota
	Ready
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case WaitingForHello:
		return "WaitingForHello"
	case Ready:
		return "Ready"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Transport is the capability a Client needs from whatever drives it: send
// one datagram, arm/disarm the oneshot liveness timer, and signal that the
// session has ended. The threaded driver backs this with a shared socket
// and a Done channel closed once on close; the event-loop driver backs it with a
// single-goroutine callback loop and a per-session *time.Timer. Passing
// this in (rather than the Client holding a socket/timer back-reference)
// is how the two driver variants share one state-machine surface without
// either owning the other.
type Transport interface {
	// Send transmits an already-encoded packet to the server.
	Send(packet []byte) error
	// StartTimer arms the oneshot timer if it is not already armed. d<=0
	// disables the timer entirely.
	StartTimer(d time.Duration)
	// StopTimer disarms the timer if armed. Idempotent.
	StopTimer()
	// SignalClose notifies the owning driver that the session has ended.
	// May be called multiple times; only the first is observable.
	SignalClose()
}

// Client drives one P0P session from the initiator's side.
type Client struct {
	sessionID  uint32
	serverAddr net.Addr
	transport  Transport

	timeoutInterval time.Duration

	seqMu sync.Mutex
	seq   uint32

	canSendMu        sync.Mutex
	canSendData      bool
	canSendGoodbye   bool
	canSendGoodbyeMu sync.Mutex

	waitingMu        sync.Mutex
	waitingForHello  bool

	closedMu sync.Mutex
	closed   bool

	// timedOut tracks whether the first timeout escalation (leave
	// WaitingForHello / send goodbye) has already fired: two successive
	// timeouts terminate the session.
	timedOutMu sync.Mutex
	timedOut   bool
}

// New constructs a Client for a session with the given server address. The
// session ID is chosen at random over [0, 2^32). A non-positive
// timeoutInterval disables the liveness timer.
func New(serverAddr net.Addr, timeoutInterval time.Duration, transport Transport) *Client {
	return &Client{
		sessionID:       rand.Uint32(),
		serverAddr:      serverAddr,
		transport:       transport,
		timeoutInterval: timeoutInterval,
		canSendData:     true,
		canSendGoodbye:  true,
		waitingForHello: true,
	}
}

// SessionID returns the session's 32-bit identifier.
func (c *Client) SessionID() uint32 { return c.sessionID }

// State reports the client's current state, derived from its flags.
func (c *Client) State() State {
	if c.IsClosed() {
		return Closed
	}
	c.waitingMu.Lock()
	waiting := c.waitingForHello
	c.waitingMu.Unlock()
	if waiting {
		return WaitingForHello
	}
	c.canSendGoodbyeMu.Lock()
	canGoodbye := c.canSendGoodbye
	c.canSendGoodbyeMu.Unlock()
	if canGoodbye {
		return Ready
	}
	return Closing
}

// IsClosed reports whether Close has been called.
func (c *Client) IsClosed() bool {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()
	return c.closed
}

func (c *Client) nextSeq() uint32 {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	seq := c.seq
	c.seq++
	return seq
}

func (c *Client) sendPacket(command p0p.Command, payload string) error {
	seq := c.nextSeq()
	return c.transport.Send(p0p.Encode(command, seq, c.sessionID, payload))
}

// SendHello emits a HELLO packet and starts the liveness timer. This must
// be the first outbound packet of the session (seq=0).
func (c *Client) SendHello() error {
	c.transport.StartTimer(c.timeoutInterval)
	return c.sendPacket(p0p.HELLO, "")
}

// SendData emits a DATA packet carrying text, starting the liveness timer
// if it isn't already running. It sends from construction onward, including
// while still WaitingForHello: DATA is not held back until the server's
// HELLO arrives. No-op once GOODBYE has been sent or the client is closed.
func (c *Client) SendData(text string) error {
	c.canSendMu.Lock()
	defer c.canSendMu.Unlock()
	if !c.canSendData {
		return nil
	}
	c.transport.StartTimer(c.timeoutInterval)
	return c.sendPacket(p0p.DATA, text)
}

// SendGoodbye emits a GOODBYE packet, restarts the liveness timer, and
// transitions the client into Closing by clearing both can-send flags.
// No-op if goodbye has already been sent.
func (c *Client) SendGoodbye() error {
	c.canSendMu.Lock()
	defer c.canSendMu.Unlock()
	c.canSendGoodbyeMu.Lock()
	defer c.canSendGoodbyeMu.Unlock()

	if !c.canSendGoodbye {
		return nil
	}

	c.transport.StopTimer()
	c.transport.StartTimer(c.timeoutInterval)

	c.canSendGoodbye = false
	c.canSendData = false

	return c.sendPacket(p0p.GOODBYE, "")
}

// OnPacket processes an inbound packet and dispatches it against the
// client's current state. No-op once the client is Closed.
func (c *Client) OnPacket(b []byte, addr net.Addr) {
	if c.IsClosed() {
		return
	}

	if addr.String() != c.serverAddr.String() || len(b) < p0p.HeaderSize {
		return
	}

	hdr, err := p0p.Decode(b)
	if err != nil || !hdr.Valid() {
		return
	}

	if hdr.SessionID != c.sessionID {
		_ = c.SendGoodbye()
		c.Close()
		return
	}

	// The hello exchange is handled exactly once, regardless of current
	// state, matching thread_client.py's nested waiting-for-hello check.
	handledHello := false
	c.waitingMu.Lock()
	if c.waitingForHello {
		c.waitingForHello = false
		handledHello = true
	}
	c.waitingMu.Unlock()

	if handledHello {
		c.transport.StopTimer()
		if hdr.Command != p0p.HELLO {
			_ = c.SendGoodbye()
			c.Close()
		}
		return
	}

	if hdr.Command == p0p.GOODBYE {
		c.Close()
		return
	}

	if hdr.Command == p0p.ALIVE {
		c.canSendGoodbyeMu.Lock()
		inClosing := !c.canSendGoodbye
		c.canSendGoodbyeMu.Unlock()
		// Do not clear the timer while Closing: the goodbye deadline must
		// stand.
		if !inClosing {
			c.transport.StopTimer()
		}
		return
	}

	// Unexpected HELLO, DATA, or unknown command.
	_ = c.SendGoodbye()
	c.Close()
}

// OnTimeout processes a single firing of the liveness timer: the first
// timeout escalates (leave WaitingForHello, or send goodbye), the second
// closes the session outright.
func (c *Client) OnTimeout() {
	if c.IsClosed() {
		return
	}

	c.waitingMu.Lock()
	c.waitingForHello = false
	c.waitingMu.Unlock()

	c.timedOutMu.Lock()
	first := !c.timedOut
	c.timedOut = true
	c.timedOutMu.Unlock()

	if first {
		c.canSendGoodbyeMu.Lock()
		canGoodbye := c.canSendGoodbye
		c.canSendGoodbyeMu.Unlock()
		if canGoodbye {
			_ = c.SendGoodbye()
		} else {
			c.Close()
		}
		return
	}

	c.Close()
}

// Close tears the client down: marks it Closed, stops the timer, and
// notifies the transport. Idempotent.
func (c *Client) Close() {
	c.closedMu.Lock()
	alreadyClosed := c.closed
	c.closed = true
	c.closedMu.Unlock()

	c.canSendMu.Lock()
	c.canSendGoodbyeMu.Lock()
	c.canSendData = false
	c.canSendGoodbye = false
	c.canSendGoodbyeMu.Unlock()
	c.canSendMu.Unlock()

	c.transport.StopTimer()
	if !alreadyClosed {
		c.transport.SignalClose()
	}
}
