// Package transport wires the client and server state machines onto real
// UDP sockets. It provides two concurrency drivers: Threaded, a
// conventional multi-goroutine driver with mutex-guarded shared state,
// and EventLoop, a single-dispatch-goroutine driver with no internal
// locking. Both implement client.Transport and server.Sender, so package
// client and package server never know which driver they're running
// under.
package transport

import (
	"net"

	"github.com/sagernet/sing/common/bufio"

	"github.com/minidomo/p0p"
)

// writePacket sends an already-encoded packet on a connected socket. When
// conn supports scatter-gather writes, the fixed header and the payload
// are written as two buffers rather than one, the same split
// SagerNet/sing's smux session.sendLoop makes between its frame header and
// frame data.
func writePacket(conn net.Conn, packet []byte) error {
	if len(packet) > p0p.HeaderSize {
		if bw, ok := bufio.CreateVectorisedWriter(conn); ok {
			vec := [][]byte{packet[:p0p.HeaderSize], packet[p0p.HeaderSize:]}
			_, err := bufio.WriteVectorised(bw, vec)
			return err
		}
	}
	_, err := conn.Write(packet)
	return err
}
