package server

import (
	"log"
	"net"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/minidomo/p0p"
)

// Sender is the capability the server needs from its transport driver: the
// ability to send one datagram to an address. Both the threaded and
// event-loop drivers in package transport implement this over the same
// *net.UDPConn the server reads from.
type Sender interface {
	SendTo(addr net.Addr, b []byte) error
}

// Server holds the server-wide state: the session table, the shared
// outbound seq counter, the log sink, the timeout interval, and the
// closed flag. It is constructed once per server instance and torn down
// once at shutdown - there are no package-level statics.
type Server struct {
	table           *Table
	sender          Sender
	logger          *log.Logger
	timeoutInterval time.Duration

	seqMu sync.Mutex
	seq   uint32

	// mu serialises classify-then-mutate for HandlePacket: lookup,
	// Classify, and the resulting insert/update/remove all happen while
	// mu is held, matching the original server.py's _close_lock wrapping
	// the entirety of handle_packet. Without this, two workers racing on
	// the same session_id could both classify against the same stale
	// record before either mutates it.
	mu sync.Mutex

	closedMu sync.Mutex
	closed   bool
}

// New constructs a Server. sender is used for every outbound packet;
// logger receives the event log lines (nil disables logging).
func New(sender Sender, logger *log.Logger, timeoutInterval time.Duration) *Server {
	return &Server{
		table:           NewTable(),
		sender:          sender,
		logger:          logger,
		timeoutInterval: timeoutInterval,
	}
}

// Table returns the server's session table, for inspection by tests and
// by the transport drivers that need to iterate active sessions.
func (s *Server) Table() *Table { return s.table }

func (s *Server) nextSeq() uint32 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	seq := s.seq
	s.seq++
	return seq
}

func (s *Server) send(addr net.Addr, command p0p.Command, sessionID uint32, payload string) {
	seq := s.nextSeq()
	if err := s.sender.SendTo(addr, p0p.Encode(command, seq, sessionID, payload)); err != nil && s.logger != nil {
		s.logger.Printf("0x%08x send error: %v", sessionID, err)
	}
}

// IsClosed reports whether Close has been called.
func (s *Server) IsClosed() bool {
	s.closedMu.Lock()
	defer s.closedMu.Unlock()
	return s.closed
}

// HandlePacket classifies and handles one inbound packet. No-op once the
// server is closed.
func (s *Server) HandlePacket(b []byte, addr net.Addr, now time.Time) {
	if s.IsClosed() {
		return
	}

	hdr, err := p0p.Decode(b)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.table.Lookup(hdr.SessionID)
	action := Classify(hdr, addr, existing, s.logger)

	switch action {
	case Normal:
		s.handleNormal(hdr, b[p0p.HeaderSize:], addr, now, existing)
	case Close:
		if existing != nil {
			s.closeSession(existing, false, hdr.Seq)
		}
	case Ignore:
		// Duplicate/Lost-packet lines, if any, were already logged by
		// Classify.
	}
}

// handleNormal mutates the table for a Normal-classified packet. existing
// is the snapshot Classify was given: nil for a first HELLO, non-nil for
// DATA/GOODBYE on an established session (Classify never returns Normal
// for DATA/GOODBYE without one). The caller holds s.mu for the duration,
// so this lookup-then-mutate is atomic with the classification that
// produced it.
func (s *Server) handleNormal(hdr p0p.Header, payload []byte, addr net.Addr, now time.Time, existing *ClientData) {
	switch hdr.Command {
	case p0p.HELLO:
		s.send(addr, p0p.HELLO, hdr.SessionID, "")
		logLine(s.logger, hdr.SessionID, &hdr.Seq, "Session created")
		s.table.Insert(&ClientData{
			SessionID:    hdr.SessionID,
			Address:      addr,
			PrevSeq:      0,
			PrevCommand:  p0p.HELLO,
			LastActivity: now,
		})

	case p0p.DATA:
		s.table.Update(hdr.SessionID, hdr.Seq, p0p.DATA, now)
		text := trimTrailingSpace(sanitizeInbound(payload))
		logLine(s.logger, hdr.SessionID, &hdr.Seq, text)
		s.send(addr, p0p.ALIVE, hdr.SessionID, "")

	case p0p.GOODBYE:
		s.table.Update(hdr.SessionID, hdr.Seq, p0p.GOODBYE, now)
		s.closeSession(existing, true, hdr.Seq)
	}
}

// closeSession removes a session and emits its closing log lines and
// GOODBYE packet. seq is the incoming packet's sequence number and is only
// logged when fromClient is true (the "GOODBYE from client." line), per
// the original's client.packet_number being updated before _client_close
// logs it.
func (s *Server) closeSession(c *ClientData, fromClient bool, seq uint32) {
	s.table.Remove(c.SessionID)
	s.send(c.Address, p0p.GOODBYE, c.SessionID, "")
	if fromClient {
		logLine(s.logger, c.SessionID, &seq, "GOODBYE from client.")
	}
	logLine(s.logger, c.SessionID, nil, "Session Closed")
}

// ReapIdle closes every session whose last activity predates now by more
// than the server's timeout interval.
func (s *Server) ReapIdle(now time.Time) {
	if s.IsClosed() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.table.IterateIdle(now, s.timeoutInterval) {
		s.closeSession(c, false, 0)
	}
}

// Close runs the shutdown sequence: marks the server closed, emits
// GOODBYE to every remaining session, and logs "Session Closed" for each.
// It does not close the underlying socket - that belongs to the
// transport driver that owns it. Taking mu drains any HandlePacket call
// already in its classify-then-mutate region before CloseAll snapshots
// the table, so a session being created concurrently with shutdown is
// still caught.
func (s *Server) Close() {
	s.closedMu.Lock()
	if s.closed {
		s.closedMu.Unlock()
		return
	}
	s.closed = true
	s.closedMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.table.CloseAll() {
		s.send(c.Address, p0p.GOODBYE, c.SessionID, "")
		logLine(s.logger, c.SessionID, nil, "Session Closed")
	}
}

// sanitizeInbound decodes payload as UTF-8, replacing invalid sequences
// with the Unicode replacement codepoint, matching the original's
// `data.decode("utf-8", "replace")`.
func sanitizeInbound(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	return strings.ToValidUTF8(string(payload), "�")
}

// trimTrailingSpace trims only trailing whitespace, matching Python's
// str.rstrip() (which, unlike strings.TrimSpace, never trims leading
// whitespace).
func trimTrailingSpace(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}
