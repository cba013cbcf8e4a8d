package pn532

import (
	"encoding/binary"
	"sync"

	"go.uber.org/zap"
)

// Device is the initiator-role entry point: it owns a Transport and
// exposes the reader workflows from spec.md §4.6 (scan, read/write NDEF,
// read/write Vault) plus the emulation loop from §4.7. mu wraps the entire
// lifecycle of any public workflow (spec.md §3, §5) — the same scope as the
// original driver's `with self._lock:` around a whole scan/exchange — so a
// Device is safe to share across goroutines and never interleaves two
// workflows' commands on the wire. StartEmulation holds mu for as long as
// the emulation loop is active, not just for its own call.
type Device struct {
	cfg Config
	t   *Transport
	cmd *commandEngine

	mu sync.Mutex
}

// NewDevice wires a Device to the named serial port. The port is opened at
// the start of each workflow and closed when that workflow finishes.
func NewDevice(portName string, cfg Config, logger *zap.Logger) *Device {
	t := NewTransport(portName, cfg, logger)
	return &Device{cfg: cfg, t: t, cmd: newCommandEngine(t, cfg)}
}

// Result is the shared envelope every initiator workflow returns: a
// success/error pair plus the wire-level log trace recorded during the
// call (spec.md §6, §7 — "every API returns a success flag, an error
// string, and the log trace so far").
type Result struct {
	Err  error
	Logs []LogEntry
}

// ScanResult is the outcome of Scan.
type ScanResult struct {
	Result
	Card *CardDescriptor // nil when no card was present
}

// preamble performs open -> wake -> SAMConfiguration -> GetFirmwareVersion
// -> RFConfiguration(x2) -> InListPassiveTarget -> parse, shared by every
// workflow (spec.md §4.6).
func (d *Device) preamble() (*CardDescriptor, error) {
	// Start every workflow with a fresh log ring so its Result carries only
	// that call's trace.
	d.t.mu.Lock()
	d.t.logs = newLogRing(defaultRingCapacity, d.t.logger)
	d.t.mu.Unlock()

	if err := d.t.Open(); err != nil {
		return nil, err
	}
	if err := d.t.WakeUp(); err != nil {
		return nil, err
	}
	if !d.cmd.samConfiguration() {
		return nil, newError(ErrTransportUnavailable, "SAMConfiguration", nil)
	}
	if _, ok := d.cmd.getFirmwareVersion(); !ok {
		return nil, newError(ErrTransportUnavailable, "GetFirmwareVersion", nil)
	}
	if !d.cmd.tuneRF() {
		return nil, newError(ErrTransportUnavailable, "RFConfiguration", nil)
	}
	data, ok := d.cmd.inListPassiveTarget()
	if !ok {
		return nil, newError(ErrTransportUnavailable, "InListPassiveTarget", nil)
	}
	card, err := parseTargetDescriptor(data)
	if err != nil {
		return nil, err
	}
	return card, nil
}

// postamble always runs InRelease then PowerDown once a target was
// activated during the workflow (spec.md §3 invariant, §4.6).
func (d *Device) postamble() {
	d.cmd.inRelease(targetTg)
	d.cmd.powerDown()
}

func (d *Device) finish() []LogEntry {
	logs := d.t.Logs()
	d.t.Close()
	return logs
}

// Scan performs the shared preamble, reports the detected card (if any),
// and always runs the postamble (spec.md §4.6 "Scan Type-A").
func (d *Device) Scan() ScanResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	card, err := d.preamble()
	d.postamble()
	logs := d.finish()
	return ScanResult{Result: Result{Err: err, Logs: logs}, Card: card}
}

// NDEFResult is the outcome of ReadNDEF.
type NDEFResult struct {
	Result
	Card *CardDescriptor
	Raw  []byte
}

// selectNDEFApplication issues the SELECT for the NDEF AID.
func (d *Device) selectNDEFApplication() (sw1, sw2 byte, err error) {
	capdu := append([]byte{0x00, insSelect, 0x04, 0x00, byte(len(ndefAID))}, ndefAID...)
	capdu = append(capdu, 0x00)
	return d.exchangeAndStrip("SelectNDEFApplication", capdu)
}

func (d *Device) exchangeAndStrip(op string, capdu []byte) (sw1, sw2 byte, err error) {
	sw1, sw2, _, err = d.cmd.exchange(op, targetTg, capdu)
	if err != nil {
		return 0, 0, err
	}
	if sw1 != 0x90 || sw2 != 0x00 {
		return sw1, sw2, newRejectedError(op, sw1, sw2)
	}
	return sw1, sw2, nil
}

func (d *Device) selectFile(op string, fid uint16) error {
	data := make([]byte, 2)
	binary.BigEndian.PutUint16(data, fid)
	capdu := append([]byte{0x00, insSelect, 0x00, 0x0C, byte(len(data))}, data...)
	_, _, err := d.exchangeAndStrip(op, capdu)
	return err
}

func (d *Device) readBinary(op string, offset uint16, length byte) ([]byte, error) {
	capdu := []byte{0x00, insReadBinary, byte(offset >> 8), byte(offset), length}
	_, _, payload, err := d.cmd.exchange(op, targetTg, capdu)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

type ccInfo struct {
	ndefFileID  uint16
	maxSize     uint16
	mlc         uint16
	writeAccess byte
}

func (d *Device) readCC() (ccInfo, error) {
	if err := d.selectFile("SelectCC", fileIDCC); err != nil {
		return ccInfo{}, err
	}
	cc, err := d.readBinary("ReadCC", 0, 15)
	if err != nil {
		return ccInfo{}, err
	}
	if len(cc) < 15 {
		return ccInfo{}, newError(ErrShortRead, "ReadCC", nil)
	}
	return ccInfo{
		ndefFileID:  binary.BigEndian.Uint16(cc[9:11]),
		maxSize:     binary.BigEndian.Uint16(cc[11:13]),
		mlc:         binary.BigEndian.Uint16(cc[5:7]),
		writeAccess: cc[14],
	}, nil
}

// ReadNDEF performs the Type 4 Tag read sequence from spec.md §4.6: select
// application, select CC, read CC, select NDEF file by the CC's advertised
// file id, read the 2-byte length, then read the message body in
// ReadChunk-sized chunks.
func (d *Device) ReadNDEF() NDEFResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	card, err := d.preamble()
	if err == nil && card == nil {
		err = newError(ErrNoCard, "ReadNDEF", nil)
	}
	var raw []byte
	if err == nil {
		raw, err = d.readNDEFBody()
	}
	d.postamble()
	logs := d.finish()
	return NDEFResult{Result: Result{Err: err, Logs: logs}, Card: card, Raw: raw}
}

func (d *Device) readNDEFBody() ([]byte, error) {
	if _, _, err := d.selectNDEFApplication(); err != nil {
		return nil, err
	}
	cc, err := d.readCC()
	if err != nil {
		return nil, err
	}
	if err := d.selectFile("SelectNDEF", cc.ndefFileID); err != nil {
		return nil, err
	}
	lenBytes, err := d.readBinary("ReadNDEFLength", 0, 2)
	if err != nil {
		return nil, err
	}
	if len(lenBytes) < 2 {
		return nil, newError(ErrShortRead, "ReadNDEFLength", nil)
	}
	l := binary.BigEndian.Uint16(lenBytes)
	if l == 0 {
		return nil, nil
	}

	out := make([]byte, 0, l)
	offset := uint16(2)
	chunk := byte(d.cfg.ReadChunk)
	for uint16(len(out)) < l {
		remaining := l - uint16(len(out))
		readLen := chunk
		if uint16(readLen) > remaining {
			readLen = byte(remaining)
		}
		body, err := d.readBinary("ReadNDEFBody", offset, readLen)
		if err != nil {
			return nil, err
		}
		if len(body) == 0 {
			break
		}
		out = append(out, body...)
		offset += uint16(len(body))
	}
	return out, nil
}

// WriteNDEF performs the Type 4 Tag write sequence from spec.md §4.6:
// select application, select CC, verify write access and size, mark the
// file empty, write the message in WriteChunk-bounded pieces, then write
// the true length.
func (d *Device) WriteNDEF(message []byte) Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	card, err := d.preamble()
	if err == nil && card == nil {
		err = newError(ErrNoCard, "WriteNDEF", nil)
	}
	if err == nil {
		err = d.writeNDEFBody(message)
	}
	d.postamble()
	logs := d.finish()
	return Result{Err: err, Logs: logs}
}

func (d *Device) writeNDEFBody(message []byte) error {
	if _, _, err := d.selectNDEFApplication(); err != nil {
		return err
	}
	cc, err := d.readCC()
	if err != nil {
		return err
	}
	if cc.writeAccess != 0x00 {
		return newError(ErrWriteDenied, "WriteNDEF", nil)
	}
	if 2+len(message) > int(cc.maxSize) {
		return newError(ErrTooLarge, "WriteNDEF", nil)
	}
	if err := d.selectFile("SelectNDEF", cc.ndefFileID); err != nil {
		return err
	}

	if err := d.updateBinary("MarkEmpty", 0, []byte{0x00, 0x00}); err != nil {
		return err
	}

	writeChunk := int(cc.mlc)
	if writeChunk == 0 || writeChunk > d.cfg.WriteChunk {
		writeChunk = d.cfg.WriteChunk
	}
	offset := uint16(2)
	for written := 0; written < len(message); {
		n := writeChunk
		if written+n > len(message) {
			n = len(message) - written
		}
		if err := d.updateBinary("WriteNDEFBody", offset, message[written:written+n]); err != nil {
			return err
		}
		written += n
		offset += uint16(n)
	}

	length := make([]byte, 2)
	binary.BigEndian.PutUint16(length, uint16(len(message)))
	return d.updateBinary("WriteNDEFLength", 0, length)
}

func (d *Device) updateBinary(op string, offset uint16, data []byte) error {
	capdu := append([]byte{0x00, insUpdateBinary, byte(offset >> 8), byte(offset), byte(len(data))}, data...)
	_, _, err := d.exchangeAndStrip(op, capdu)
	return err
}

// VaultResult is the outcome of ReadVault.
type VaultResult struct {
	Result
	Card *CardDescriptor
	Data []byte
}

func (d *Device) selectVaultApplication() error {
	capdu := append([]byte{0x00, insSelect, 0x04, 0x00, byte(len(vaultAID))}, vaultAID...)
	_, _, err := d.exchangeAndStrip("SelectVaultApplication", capdu)
	return err
}

// ReadVault performs the preamble, selects the Vault AID, issues a READ
// BINARY at the given offset/length, and always runs the postamble
// (spec.md §4.6 "Read Vault").
func (d *Device) ReadVault(offset, length byte) VaultResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	card, err := d.preamble()
	if err == nil && card == nil {
		err = newError(ErrNoCard, "ReadVault", nil)
	}
	var data []byte
	if err == nil {
		err = d.selectVaultApplication()
	}
	if err == nil {
		capdu := []byte{0x00, insReadBinary, 0x00, offset, length}
		_, _, payload, exErr := d.cmd.exchange("ReadVault", targetTg, capdu)
		if exErr != nil {
			err = exErr
		} else {
			data = payload
		}
	}
	d.postamble()
	logs := d.finish()
	return VaultResult{Result: Result{Err: err, Logs: logs}, Card: card, Data: data}
}

// WriteVaultResult is the outcome of WriteVault.
type WriteVaultResult struct {
	Result
	Card         *CardDescriptor
	BytesWritten int
}

// WriteVault performs the preamble, selects the Vault AID, issues a WRITE
// (INS=0xD0) at the given offset, and always runs the postamble (spec.md
// §4.6 "Write Vault").
func (d *Device) WriteVault(offset byte, data []byte) WriteVaultResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	card, err := d.preamble()
	if err == nil && card == nil {
		err = newError(ErrNoCard, "WriteVault", nil)
	}
	written := 0
	if err == nil {
		err = d.selectVaultApplication()
	}
	if err == nil {
		capdu := append([]byte{0x00, insWrite, 0x00, offset, byte(len(data))}, data...)
		_, _, exErr := d.exchangeAndStrip("WriteVault", capdu)
		if exErr != nil {
			err = exErr
		} else {
			written = len(data)
		}
	}
	d.postamble()
	logs := d.finish()
	return WriteVaultResult{Result: Result{Err: err, Logs: logs}, Card: card, BytesWritten: written}
}

// VaultLengthResult is the outcome of ReadVaultLength (SPEC_FULL.md §5).
type VaultLengthResult struct {
	Result
	Card   *CardDescriptor
	Length uint16
}

// ReadVaultLength performs the preamble, selects the Vault AID, issues the
// supplemented GET LENGTH instruction, and always runs the postamble.
func (d *Device) ReadVaultLength() VaultLengthResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	card, err := d.preamble()
	if err == nil && card == nil {
		err = newError(ErrNoCard, "ReadVaultLength", nil)
	}
	var length uint16
	if err == nil {
		err = d.selectVaultApplication()
	}
	if err == nil {
		capdu := []byte{0x00, insGetVaultLength, 0x00, 0x00, 0x00}
		_, _, payload, exErr := d.cmd.exchange("ReadVaultLength", targetTg, capdu)
		if exErr != nil {
			err = exErr
		} else if len(payload) >= 2 {
			length = binary.BigEndian.Uint16(payload)
		}
	}
	d.postamble()
	logs := d.finish()
	return VaultLengthResult{Result: Result{Err: err, Logs: logs}, Card: card, Length: length}
}
