package server

import (
	"log"
	"net"

	"github.com/minidomo/p0p"
)

// Action is the outcome of classifying an inbound packet against the
// current session state.
type Action int

const (
	Normal Action = iota
	Ignore
	Close
)

func (a Action) String() string {
	switch a {
	case Normal:
		return "NORMAL"
	case Ignore:
		return "IGNORE"
	case Close:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// Classify is a pure function of (packet header, source address, existing
// session record) -> Action, evaluated by a fixed set of ordered rules.
// existing is nil when no session is known for the header's session_id.
// logger receives the "Duplicate packet!" / "Lost packet!" lines the
// original server.py emits as a side effect of classification itself,
// before the handler decides what to do with the Action.
func Classify(hdr p0p.Header, addr net.Addr, existing *ClientData, logger *log.Logger) Action {
	if !hdr.Valid() {
		return Ignore
	}

	if existing == nil {
		if hdr.Seq == 0 && hdr.Command == p0p.HELLO {
			return Normal
		}
		return Ignore
	}

	if addr.String() != existing.Address.String() {
		return Ignore
	}

	switch {
	case hdr.Seq == existing.PrevSeq:
		if hdr.Command == existing.PrevCommand && isKnownCommand(hdr.Command) {
			logLine(logger, hdr.SessionID, &hdr.Seq, "Duplicate packet!")
			return Ignore
		}
		return Close

	case hdr.Seq < existing.PrevSeq:
		return Close

	default: // hdr.Seq > existing.PrevSeq
		for i := existing.PrevSeq + 1; i < hdr.Seq; i++ {
			logLine(logger, hdr.SessionID, &i, "Lost packet!")
		}
		switch hdr.Command {
		case p0p.HELLO, p0p.ALIVE:
			return Close
		case p0p.GOODBYE, p0p.DATA:
			return Normal
		default:
			return Close
		}
	}
}

func isKnownCommand(c p0p.Command) bool {
	switch c {
	case p0p.HELLO, p0p.DATA, p0p.GOODBYE:
		return true
	default:
		return false
	}
}

// logLine writes a log line in the "0x<8-hex session_id> [<seq>] <msg>"
// format. seq is omitted when nil.
func logLine(logger *log.Logger, sessionID uint32, seq *uint32, msg string) {
	if logger == nil {
		return
	}
	if seq == nil {
		logger.Printf("0x%08x %s", sessionID, msg)
	} else {
		logger.Printf("0x%08x [%d] %s", sessionID, *seq, msg)
	}
}
