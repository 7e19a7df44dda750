package p0p

import "errors"

// Error taxonomy per the protocol's error handling design. Policy for each
// is enforced by callers (client state machine, server classifier); the
// codec only ever returns ErrMalformedHeader.
var (
	// ErrMalformedHeader is returned by Decode when fewer than HeaderSize
	// bytes are available. Policy: silently drop, never terminate a session.
	ErrMalformedHeader = errors.New("p0p: malformed header")

	// ErrWrongSource marks a packet for a known session_id arriving from an
	// address other than the one recorded for that session. Policy: drop.
	ErrWrongSource = errors.New("p0p: packet from wrong source address")

	// ErrProtocolAnomaly marks a duplicate-with-differing-command,
	// out-of-order, unexpected-command, or unknown-session packet. Policy:
	// terminate the offending session with GOODBYE.
	ErrProtocolAnomaly = errors.New("p0p: protocol anomaly")
)
