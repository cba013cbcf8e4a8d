package pn532

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// wakeUpPreamble is sixteen sync bytes followed by the start of a normal
// frame, used to pull the PN532 out of a low-power HSU state (spec.md §6).
var wakeUpPreamble = append(bytes.Repeat([]byte{0x55}, 16), 0x00, 0x00, 0xFF)

// Transport owns the serial port exclusively and serializes every command
// issued against it, per spec.md §4.2 and §5 (the scheduling model).
type Transport struct {
	cfg Config

	mu       sync.Mutex
	port     serialPort
	portName string

	// dial opens the underlying port. It is openSerialPort in production;
	// tests substitute a fake so the recovery ladder can be exercised
	// without a real UART.
	dial func(name string, baud int) (serialPort, error)

	logger *zap.Logger
	logs   *logRing
}

// NewTransport constructs a Transport for the named serial device. The
// port is not opened until Open is called.
func NewTransport(portName string, cfg Config, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{cfg: cfg, portName: portName, dial: openSerialPort, logger: logger, logs: newLogRing(defaultRingCapacity, logger)}
}

// Logs returns a snapshot of the TX/RX/ERR entries held in the transport's
// log ring: the most recent ones, up to the ring's capacity. A Device
// workflow replaces the ring when it starts.
func (t *Transport) Logs() []LogEntry {
	return t.logs.Snapshot()
}

// Open opens the serial port at 115200 8-N-1 with DTR deasserted, then
// pulses DTR (assert, release, wait) to force the PN532 into a known
// post-reset state, and flushes any bytes that arrived during the wait
// (spec.md §4.2).
func (t *Transport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openLocked()
}

func (t *Transport) openLocked() error {
	port, err := t.dial(t.portName, t.cfg.Baud)
	if err != nil {
		return newError(ErrTransportUnavailable, "Open", err)
	}
	t.port = port

	if err := t.resetPulseLocked(t.cfg.ResetPulseAssert, t.cfg.PostResetSleep); err != nil {
		t.port.Close()
		t.port = nil
		return err
	}
	return nil
}

// HardReset performs the same DTR pulse as Open but with the longer
// timings used for escalated recovery (spec.md §4.2).
func (t *Transport) HardReset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return newError(ErrTransportUnavailable, "HardReset", fmt.Errorf("port not open"))
	}
	return t.resetPulseLocked(t.cfg.HardResetPulseAssert, t.cfg.HardResetSleep)
}

func (t *Transport) resetPulseLocked(assertFor, wait time.Duration) error {
	if err := t.port.SetDTR(true); err != nil {
		return newError(ErrTransportUnavailable, "resetPulse", err)
	}
	time.Sleep(assertFor)
	if err := t.port.SetDTR(false); err != nil {
		return newError(ErrTransportUnavailable, "resetPulse", err)
	}
	time.Sleep(wait)
	if err := t.port.ResetInputBuffer(); err != nil {
		return newError(ErrTransportUnavailable, "resetPulse", err)
	}
	return nil
}

// WakeUp writes the sync preamble, sleeps, flushes, and issues one
// sacrificial GetFirmwareVersion whose response is discarded (the first
// command after HSU wake is unreliable). Per the original driver's
// observed behavior, if that sacrificial command produces no usable
// response at all, WakeUp retries the sequence once more before giving up
// silently (the caller's own command will surface any real failure).
func (t *Transport) WakeUp() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return newError(ErrTransportUnavailable, "WakeUp", fmt.Errorf("port not open"))
	}

	for attempt := 0; attempt < 2; attempt++ {
		if _, err := t.port.Write(wakeUpPreamble); err != nil {
			return newError(ErrTransportUnavailable, "WakeUp", err)
		}
		time.Sleep(t.cfg.WakeSleep)
		if err := t.port.ResetInputBuffer(); err != nil {
			return newError(ErrTransportUnavailable, "WakeUp", err)
		}

		if _, ok := t.sendCommandLocked(cmdGetFirmwareVersion, nil, t.cfg.DefaultTimeout); ok {
			return nil
		}
	}
	return nil
}

// Flush discards whatever is currently buffered in the serial port's input,
// used between soft retries (spec.md §4.2: "soft retry (flush + delay)").
func (t *Transport) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return newError(ErrTransportUnavailable, "Flush", fmt.Errorf("port not open"))
	}
	return t.port.ResetInputBuffer()
}

// SendCommand writes a built frame, reads the 6-byte ACK, then reads the
// response per the frame codec within the given deadline. It returns
// (payload, true) on success and (nil, false) on any of: bad ACK, short
// read, checksum mismatch (spec.md §4.2).
func (t *Transport) SendCommand(cmd byte, params []byte, timeout time.Duration) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sendCommandLocked(cmd, params, timeout)
}

func (t *Transport) sendCommandLocked(cmd byte, params []byte, timeout time.Duration) ([]byte, bool) {
	if t.port == nil {
		t.logs.appendErr("SendCommand", newError(ErrTransportUnavailable, "SendCommand", fmt.Errorf("port not open")))
		return nil, false
	}

	frameBytes, err := buildCommandFrame(cmd, params)
	if err != nil {
		t.logs.appendErr("SendCommand", err)
		return nil, false
	}

	if err := t.port.SetReadTimeout(timeout); err != nil {
		t.logs.appendErr("SendCommand", err)
		return nil, false
	}

	if _, err := t.port.Write(frameBytes); err != nil {
		t.logs.appendErr("SendCommand", newError(ErrTransportUnavailable, "SendCommand", err))
		return nil, false
	}
	t.logs.append(DirTX, frameBytes)

	ack := make([]byte, 6)
	if _, err := fillExactly(t.port, ack); err != nil || !isAckFrame(ack) {
		t.logs.appendErr("SendCommand", newError(ErrNoACK, "SendCommand", err))
		return nil, false
	}

	data, err := parseResponse(t.port, time.Now().Add(timeout))
	if err != nil {
		t.logs.appendErr("SendCommand", err)
		return nil, false
	}
	t.logs.append(DirRX, data)

	if len(data) < 2 || data[0] != tfiPN532ToHost {
		t.logs.appendErr("SendCommand", newError(ErrShortRead, "SendCommand", fmt.Errorf("malformed response data % X", data)))
		return nil, false
	}

	return data, true
}

// Close releases the serial port.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

// fillExactly reads exactly len(buf) bytes, distinguishing a short read
// from a transport error.
func fillExactly(r serialPort, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, fmt.Errorf("pn532: zero-byte read")
		}
	}
	return total, nil
}

// reopen closes and reopens the port, used by the hard-recovery ladder in
// SAMConfiguration (spec.md §4.2).
func (t *Transport) reopen() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != nil {
		t.port.Close()
		t.port = nil
	}
	return t.openLocked()
}
