// Package server implements the server-side session table, packet
// classifier, and handler.
package server

import (
	"net"
	"time"

	"github.com/minidomo/p0p"
)

// ClientData is the server's per-session record.
type ClientData struct {
	SessionID    uint32
	Address      net.Addr
	PrevSeq      uint32
	PrevCommand  p0p.Command
	LastActivity time.Time
}
