package p0p

import (
	"encoding/binary"
	"strings"
	"unicode/utf8"
)

// Header is the fixed 12-byte P0P packet header, decoded from network byte
// order. Magic/version checks are a policy decision for callers; Decode
// reports only whether 12 bytes were available to read.
type Header struct {
	Magic     uint16
	Version   uint8
	Command   Command
	Seq       uint32
	SessionID uint32
}

// Valid reports whether the header carries the expected magic and version.
func (h Header) Valid() bool {
	return h.Magic == Magic && h.Version == Version
}

// Encode writes the 12-byte header in network byte order and, when payload
// is non-empty (whatever the command), appends its UTF-8 bytes with invalid
// sequences replaced by the Unicode replacement codepoint.
func Encode(command Command, seq uint32, sessionID uint32, payload string) []byte {
	out := make([]byte, HeaderSize, HeaderSize+len(payload))
	putHeader(out, command, seq, sessionID)
	if payload != "" {
		out = append(out, sanitizeUTF8(payload)...)
	}
	return out
}

// putHeader writes the 12-byte header into the first HeaderSize bytes of b.
// b must have length >= HeaderSize.
func putHeader(b []byte, command Command, seq uint32, sessionID uint32) {
	binary.BigEndian.PutUint16(b[0:2], Magic)
	b[2] = Version
	b[3] = byte(command)
	binary.BigEndian.PutUint32(b[4:8], seq)
	binary.BigEndian.PutUint32(b[8:12], sessionID)
}

// Decode reads a 12-byte header from b. The caller retains b[HeaderSize:]
// as the payload. Decode never validates magic/version or command values;
// it only reports ErrMalformedHeader when b is too short to contain a
// header.
func Decode(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrMalformedHeader
	}
	return Header{
		Magic:     binary.BigEndian.Uint16(b[0:2]),
		Version:   b[2],
		Command:   Command(b[3]),
		Seq:       binary.BigEndian.Uint32(b[4:8]),
		SessionID: binary.BigEndian.Uint32(b[8:12]),
	}, nil
}

// sanitizeUTF8 returns s re-encoded as UTF-8 bytes, with any invalid byte
// sequence replaced by the Unicode replacement codepoint (U+FFFD) -
// matching Python's str.encode("utf-8", "replace").
func sanitizeUTF8(s string) []byte {
	if utf8.ValidString(s) {
		return []byte(s)
	}
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				b.WriteRune(utf8.RuneError)
				continue
			}
		}
		b.WriteRune(r)
	}
	return []byte(b.String())
}
