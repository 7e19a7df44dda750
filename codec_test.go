package p0p

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name      string
		command   Command
		seq       uint32
		sessionID uint32
		payload   string
	}{
		{"hello", HELLO, 0, 0x1234, ""},
		{"data", DATA, 7, 0xdeadbeef, "hello world"},
		{"alive", ALIVE, 1, 1, ""},
		{"goodbye", GOODBYE, 9999, 42, ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			encoded := Encode(c.command, c.seq, c.sessionID, c.payload)
			hdr, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode returned error: %v", err)
			}
			if hdr.Magic != Magic {
				t.Errorf("Magic = %#x, want %#x", hdr.Magic, Magic)
			}
			if hdr.Version != Version {
				t.Errorf("Version = %d, want %d", hdr.Version, Version)
			}
			if hdr.Command != c.command {
				t.Errorf("Command = %v, want %v", hdr.Command, c.command)
			}
			if hdr.Seq != c.seq {
				t.Errorf("Seq = %d, want %d", hdr.Seq, c.seq)
			}
			if hdr.SessionID != c.sessionID {
				t.Errorf("SessionID = %d, want %d", hdr.SessionID, c.sessionID)
			}
			payload := encoded[HeaderSize:]
			if string(payload) != c.payload {
				t.Errorf("payload = %q, want %q", payload, c.payload)
			}
		})
	}
}

func TestDecodeShortPacket(t *testing.T) {
	for n := 0; n < HeaderSize; n++ {
		b := make([]byte, n)
		if _, err := Decode(b); err != ErrMalformedHeader {
			t.Errorf("Decode(%d bytes) error = %v, want ErrMalformedHeader", n, err)
		}
	}
}

func TestHeaderValid(t *testing.T) {
	good := Header{Magic: Magic, Version: Version}
	if !good.Valid() {
		t.Error("expected header with correct magic/version to be valid")
	}
	bad := Header{Magic: 0xFFFF, Version: Version}
	if bad.Valid() {
		t.Error("expected header with wrong magic to be invalid")
	}
	bad2 := Header{Magic: Magic, Version: 2}
	if bad2.Valid() {
		t.Error("expected header with wrong version to be invalid")
	}
}

func TestEncodeInvalidUTF8Replaced(t *testing.T) {
	invalid := string([]byte{0x68, 0x69, 0xff, 0x21}) // "hi" + invalid byte + "!"
	encoded := Encode(DATA, 0, 1, invalid)
	payload := encoded[HeaderSize:]
	if !bytes.Contains(payload, []byte("�")) {
		t.Errorf("expected replacement codepoint in payload, got %q", payload)
	}
	if !bytes.HasPrefix(payload, []byte("hi")) || !bytes.HasSuffix(payload, []byte("!")) {
		t.Errorf("expected surrounding bytes preserved, got %q", payload)
	}
}

func TestCommandString(t *testing.T) {
	cases := map[Command]string{
		HELLO:         "HELLO",
		DATA:          "DATA",
		ALIVE:         "ALIVE",
		GOODBYE:       "GOODBYE",
		Command(0xff): "UNKNOWN",
	}
	for cmd, want := range cases {
		if got := cmd.String(); got != want {
			t.Errorf("Command(%d).String() = %q, want %q", cmd, got, want)
		}
	}
}
