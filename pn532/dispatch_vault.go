package pn532

import (
	"bytes"
	"encoding/binary"
	"sync"
)

// vaultAID identifies the proprietary Vault profile (spec.md §6).
var vaultAID = []byte{0xF0, 0x01, 0x02, 0x03, 0x04, 0x05}

// insGetVaultLength is the supplemented GET LENGTH instruction (SPEC_FULL.md
// §5): no data in, a 2-byte big-endian length out. Chosen adjacent to the
// existing WRITE (0xD0) instruction space so it does not collide with any
// ISO 7816-4 instruction this profile already dispatches.
const insGetVaultLength byte = 0xD4

// VaultDispatcher implements the flat byte-addressable Vault profile
// (spec.md §3, §4.9). Offsets are single-byte (P2 only): the Vault's
// 256-byte buffer makes 8-bit addressing exactly sufficient, and spec.md
// §9 directs matching the in-tree emulator's 8-bit behavior over the
// 16-bit offset some test fixtures imply.
type VaultDispatcher struct {
	mu sync.Mutex

	selected bool
	buf      []byte
}

// NewVaultDispatcher builds a VaultDispatcher whose buffer is initial,
// truncated or zero-padded to size bytes.
func NewVaultDispatcher(initial []byte, size int) *VaultDispatcher {
	buf := make([]byte, size)
	copy(buf, initial)
	return &VaultDispatcher{buf: buf}
}

// HandleAPDU implements Dispatcher.
func (d *VaultDispatcher) HandleAPDU(capdu []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(capdu) < 4 {
		return statusBytes(swInsNotSupport)
	}
	ins := capdu[1]
	p1 := capdu[2]
	p2 := capdu[3]

	switch ins {
	case insSelect:
		return d.handleSelect(p1, capdu[4:])
	case insReadBinary:
		return d.handleReadBinary(p2, capdu)
	case insWrite:
		return d.handleWrite(p2, capdu)
	case insGetVaultLength:
		return d.handleGetLength()
	default:
		return statusBytes(swInsNotSupport)
	}
}

func (d *VaultDispatcher) handleSelect(p1 byte, rest []byte) []byte {
	if p1 != 0x04 || len(rest) < 1 {
		return statusBytes(swFileNotFound)
	}
	lc := int(rest[0])
	if len(rest) < 1+lc || !bytes.Equal(rest[1:1+lc], vaultAID) {
		return statusBytes(swFileNotFound)
	}
	d.selected = true
	return statusBytes(swSuccess)
}

func (d *VaultDispatcher) handleReadBinary(p2 byte, capdu []byte) []byte {
	if !d.selected {
		return statusBytes(swFileNotFound)
	}
	offset := int(p2)
	if offset >= len(d.buf) {
		return statusBytes(swFileNotFound)
	}
	le := int(capdu[len(capdu)-1])
	end := offset + le
	if end > len(d.buf) {
		end = len(d.buf)
	}
	out := append([]byte(nil), d.buf[offset:end]...)
	return append(out, statusBytes(swSuccess)...)
}

func (d *VaultDispatcher) handleWrite(p2 byte, capdu []byte) []byte {
	if !d.selected {
		return statusBytes(swFileNotFound)
	}
	if len(capdu) < 5 {
		return statusBytes(swWrongLength)
	}
	offset := int(p2)
	lc := int(capdu[4])
	if len(capdu) < 5+lc {
		return statusBytes(swWrongLength)
	}
	if offset+lc > len(d.buf) {
		return statusBytes(swFileNotFound)
	}
	copy(d.buf[offset:offset+lc], capdu[5:5+lc])
	return statusBytes(swSuccess)
}

func (d *VaultDispatcher) handleGetLength() []byte {
	if !d.selected {
		return statusBytes(swFileNotFound)
	}
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, uint16(len(d.buf)))
	return append(out, statusBytes(swSuccess)...)
}

// Snapshot returns a copy of the Vault buffer's current contents.
func (d *VaultDispatcher) Snapshot() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.buf...)
}
