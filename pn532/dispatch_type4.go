package pn532

import (
	"bytes"
	"encoding/binary"
	"sync"
)

// Type 4 Tag file identifiers and AID, shared with the Type4Dispatcher and
// the ReadNDEF/WriteNDEF initiator workflows (spec.md §3, §4.8, §6).
var (
	ndefAID = []byte{0xD2, 0x76, 0x00, 0x00, 0x85, 0x01, 0x01}
)

const (
	fileIDCC   uint16 = 0xE103
	fileIDNDEF uint16 = 0xE104
)

type selectedFile int

const (
	fileNone selectedFile = iota
	fileCC
	fileNDEF
)

// ISO 7816-4 instruction bytes used by both dispatchers.
const (
	insSelect       byte = 0xA4
	insReadBinary   byte = 0xB0
	insUpdateBinary byte = 0xD6
	insWrite        byte = 0xD0
)

// Type4Dispatcher implements the NFC Forum Type 4 Tag virtual file system:
// a read-only Capability Container file and an NDEF file (spec.md §3,
// §4.8). It is safe for concurrent use by a single emulation loop plus the
// caller that inspects its committed NDEF message.
type Type4Dispatcher struct {
	mu sync.Mutex

	selected selectedFile

	cc   []byte // 15-byte Capability Container
	ndef []byte // 2-byte big-endian length prefix + message bytes
}

// NewType4Dispatcher builds a Type4Dispatcher pre-loaded with message as
// its NDEF content. maxSize bounds how large a future WriteNDEF-style
// UPDATE BINARY sequence may grow the file to; since this dispatcher is
// read-only over the wire (UPDATE BINARY always returns 6A82, per spec.md
// §4.8), maxSize only affects the CC's advertised MaxNDEFSize field.
func NewType4Dispatcher(message []byte, maxSize uint16) *Type4Dispatcher {
	d := &Type4Dispatcher{}
	d.ndef = make([]byte, 2+len(message))
	binary.BigEndian.PutUint16(d.ndef[0:2], uint16(len(message)))
	copy(d.ndef[2:], message)
	d.cc = buildCapabilityContainer(maxSize)
	return d
}

// buildCapabilityContainer lays out the 15-byte CC file exactly as spec.md
// §3 describes: CCLEN=000F, MappingVersion=20, MLe=003B, MLc=0034, and an
// NDEF-TLV {type=04, len=06, fileId=E104, maxSize, readAccess=00,
// writeAccess=FF}.
func buildCapabilityContainer(maxSize uint16) []byte {
	cc := make([]byte, 15)
	binary.BigEndian.PutUint16(cc[0:2], 0x000F) // CCLEN
	cc[2] = 0x20                                // MappingVersion
	binary.BigEndian.PutUint16(cc[3:5], 0x003B) // MLe
	binary.BigEndian.PutUint16(cc[5:7], 0x0034) // MLc
	cc[7] = 0x04                                // NDEF-TLV type
	cc[8] = 0x06                                // NDEF-TLV len
	binary.BigEndian.PutUint16(cc[9:11], fileIDNDEF)
	binary.BigEndian.PutUint16(cc[11:13], maxSize)
	cc[13] = 0x00 // readAccess
	cc[14] = 0xFF // writeAccess
	return cc
}

// HandleAPDU implements Dispatcher.
func (d *Type4Dispatcher) HandleAPDU(capdu []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(capdu) < 4 {
		return statusBytes(swInsNotSupport)
	}

	// CLA (capdu[0]) is ignored — historical ISO relaxation (spec.md §4.8).
	ins := capdu[1]
	p1 := capdu[2]
	p2 := capdu[3]

	switch ins {
	case insSelect:
		return d.handleSelect(p1, p2, capdu[4:])
	case insReadBinary:
		return d.handleReadBinary(p1, p2, capdu)
	case insUpdateBinary:
		return statusBytes(swFileNotFound)
	default:
		return statusBytes(swInsNotSupport)
	}
}

func (d *Type4Dispatcher) handleSelect(p1, _ byte, rest []byte) []byte {
	if len(rest) < 1 {
		return statusBytes(swInsNotSupport)
	}
	lc := int(rest[0])
	if len(rest) < 1+lc {
		return statusBytes(swInsNotSupport)
	}
	data := rest[1 : 1+lc]

	switch p1 {
	case 0x04:
		if bytes.Equal(data, ndefAID) {
			// Selecting the application does not itself select a file.
			return statusBytes(swSuccess)
		}
		return statusBytes(swFileNotFound)
	case 0x00:
		if len(data) != 2 {
			return statusBytes(swFileNotFound)
		}
		fid := binary.BigEndian.Uint16(data)
		switch fid {
		case fileIDCC:
			d.selected = fileCC
			return statusBytes(swSuccess)
		case fileIDNDEF:
			d.selected = fileNDEF
			return statusBytes(swSuccess)
		default:
			return statusBytes(swFileNotFound)
		}
	default:
		return statusBytes(swFileNotFound)
	}
}

func (d *Type4Dispatcher) handleReadBinary(p1, p2 byte, capdu []byte) []byte {
	if d.selected == fileNone {
		return statusBytes(swFileNotFound)
	}
	if len(capdu) < 5 {
		return statusBytes(swInsNotSupport)
	}
	offset := int(p1)<<8 | int(p2)
	le := int(capdu[len(capdu)-1])

	var file []byte
	switch d.selected {
	case fileCC:
		file = d.cc
	case fileNDEF:
		file = d.ndef
	}

	if offset > len(file) {
		return statusBytes(swFileNotFound)
	}
	end := offset + le
	if end > len(file) {
		// A short read is allowed when offset+Le exceeds the file length;
		// return whatever exists (spec.md §4.8).
		end = len(file)
	}
	out := append([]byte(nil), file[offset:end]...)
	return append(out, statusBytes(swSuccess)...)
}

// NDEFMessage returns the message bytes currently held in the NDEF file
// (without its 2-byte length prefix).
func (d *Type4Dispatcher) NDEFMessage() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.ndef) < 2 {
		return nil
	}
	n := binary.BigEndian.Uint16(d.ndef[0:2])
	if int(n)+2 > len(d.ndef) {
		n = uint16(len(d.ndef) - 2)
	}
	return append([]byte(nil), d.ndef[2:2+int(n)]...)
}
