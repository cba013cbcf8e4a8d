package pn532

import (
	"bytes"
	"testing"
)

func selectAPDU(aid []byte) []byte {
	return append([]byte{0x00, insSelect, 0x04, 0x00, byte(len(aid))}, aid...)
}

func selectFileAPDU(fid uint16) []byte {
	return []byte{0x00, insSelect, 0x00, 0x0C, 0x02, byte(fid >> 8), byte(fid)}
}

func readBinaryAPDU(offset uint16, le byte) []byte {
	return []byte{0x00, insReadBinary, byte(offset >> 8), byte(offset), le}
}

func TestType4DispatcherRejectsReadBeforeSelect(t *testing.T) {
	d := NewType4Dispatcher([]byte("hello"), 128)
	sw := d.HandleAPDU(readBinaryAPDU(0, 15))
	if !bytes.Equal(sw, []byte{0x6A, 0x82}) {
		t.Fatalf("got % X, want 6A82", sw)
	}
}

func TestType4DispatcherCapabilityContainer(t *testing.T) {
	d := NewType4Dispatcher([]byte("hello"), 128)

	if sw := d.HandleAPDU(selectAPDU(ndefAID)); !bytes.Equal(sw, []byte{0x90, 0x00}) {
		t.Fatalf("select application: got % X", sw)
	}
	if sw := d.HandleAPDU(selectFileAPDU(fileIDCC)); !bytes.Equal(sw, []byte{0x90, 0x00}) {
		t.Fatalf("select CC: got % X", sw)
	}

	resp := d.HandleAPDU(readBinaryAPDU(0, 15))
	if len(resp) != 17 {
		t.Fatalf("expected 15 CC bytes + SW, got %d bytes", len(resp))
	}
	cc, sw := resp[:15], resp[15:]
	if !bytes.Equal(sw, []byte{0x90, 0x00}) {
		t.Fatalf("read CC status = % X, want 9000", sw)
	}
	if cc[0] != 0x00 || cc[1] != 0x0F {
		t.Errorf("CCLEN = % X, want 000F", cc[0:2])
	}
	if cc[9] != 0xE1 || cc[10] != 0x04 {
		t.Errorf("NDEF file id = % X, want E104", cc[9:11])
	}
	if cc[13] != 0x00 {
		t.Errorf("readAccess = %02X, want 00", cc[13])
	}
	if cc[14] != 0xFF {
		t.Errorf("writeAccess = %02X, want FF (always read-only over the wire)", cc[14])
	}
}

func TestType4DispatcherReadsNDEFLengthAndBody(t *testing.T) {
	message := []byte("hello world")
	d := NewType4Dispatcher(message, 128)
	d.HandleAPDU(selectAPDU(ndefAID))
	d.HandleAPDU(selectFileAPDU(fileIDNDEF))

	lenResp := d.HandleAPDU(readBinaryAPDU(0, 2))
	if lenResp[0] != 0x00 || lenResp[1] != byte(len(message)) {
		t.Fatalf("NDEF length prefix = % X, want 00 %02X", lenResp[:2], len(message))
	}

	body := d.HandleAPDU(readBinaryAPDU(2, byte(len(message))))
	if !bytes.Equal(body, append(append([]byte(nil), message...), 0x90, 0x00)) {
		t.Fatalf("body = % X", body)
	}
}

func TestType4DispatcherShortReadAtEOF(t *testing.T) {
	message := []byte("hi")
	d := NewType4Dispatcher(message, 128)
	d.HandleAPDU(selectAPDU(ndefAID))
	d.HandleAPDU(selectFileAPDU(fileIDNDEF))

	// Ask for far more than remains after the length prefix; a short read
	// is allowed rather than an error.
	resp := d.HandleAPDU(readBinaryAPDU(2, 0xFF))
	if !bytes.Equal(resp, append(append([]byte(nil), message...), 0x90, 0x00)) {
		t.Fatalf("short read = % X, want %q + 9000", resp, message)
	}
}

func TestType4DispatcherUpdateBinaryAlwaysDenied(t *testing.T) {
	d := NewType4Dispatcher([]byte("x"), 128)
	d.HandleAPDU(selectAPDU(ndefAID))
	d.HandleAPDU(selectFileAPDU(fileIDNDEF))

	capdu := []byte{0x00, insUpdateBinary, 0x00, 0x00, 0x02, 0x00, 0x00}
	sw := d.HandleAPDU(capdu)
	if !bytes.Equal(sw, []byte{0x6A, 0x82}) {
		t.Fatalf("UPDATE BINARY = % X, want 6A82", sw)
	}
}

func TestType4DispatcherUnknownAIDRejected(t *testing.T) {
	d := NewType4Dispatcher(nil, 128)
	sw := d.HandleAPDU(selectAPDU([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
	if !bytes.Equal(sw, []byte{0x6A, 0x82}) {
		t.Fatalf("got % X, want 6A82", sw)
	}
}

func TestType4DispatcherNDEFMessage(t *testing.T) {
	d := NewType4Dispatcher([]byte("round trip"), 128)
	if got := string(d.NDEFMessage()); got != "round trip" {
		t.Errorf("NDEFMessage() = %q", got)
	}
}
