package pn532

import (
	"io"
	"sync"
	"time"
)

// fakeHandler produces the response a scripted PN532 command should give,
// given its parameter bytes. ok=false simulates a silently dropped command
// (no ACK observed by the transport).
type fakeHandler func(params []byte) (respCode byte, payload []byte, ok bool)

// fakePort is a serialPort double driven entirely by per-command handlers,
// so a test can script "the PN532 said X" without constructing raw frames
// by hand. It mirrors the one real property SendCommand depends on: a
// Write is answered by whatever the next Read calls return, nothing more.
type fakePort struct {
	mu       sync.Mutex
	handlers map[byte]fakeHandler

	writes     [][]byte
	dtrHistory []bool
	resets     int
	closed     bool

	readBuf []byte
	readPos int
}

func newFakePort() *fakePort {
	return &fakePort{handlers: make(map[byte]fakeHandler)}
}

// on registers (or replaces) the handler for a command code.
func (p *fakePort) on(cmd byte, h fakeHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[cmd] = h
}

// onOK is shorthand for a handler that always succeeds with a fixed payload.
func (p *fakePort) onOK(cmd, respCode byte, payload []byte) {
	p.on(cmd, func([]byte) (byte, []byte, bool) { return respCode, payload, true })
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.writes = append(p.writes, append([]byte(nil), b...))

	cmd, params, ok := parseScriptedCommand(b)
	if !ok {
		p.readBuf, p.readPos = nil, 0
		return len(b), nil
	}
	h, known := p.handlers[cmd]
	if !known {
		p.readBuf, p.readPos = nil, 0
		return len(b), nil
	}
	respCode, payload, respond := h(params)
	if !respond {
		p.readBuf, p.readPos = nil, 0
		return len(b), nil
	}
	frame, err := buildFrame(tfiPN532ToHost, respCode, payload)
	if err != nil {
		p.readBuf, p.readPos = nil, 0
		return len(b), nil
	}
	p.readBuf = append(append([]byte(nil), ackFrame[:]...), frame...)
	p.readPos = 0
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readPos >= len(p.readBuf) {
		return 0, io.EOF
	}
	n := copy(b, p.readBuf[p.readPos:])
	p.readPos += n
	return n, nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) SetDTR(dtr bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dtrHistory = append(p.dtrHistory, dtr)
	return nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	return nil
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

// parseScriptedCommand extracts the command code and parameter bytes from a
// normal information frame, ignoring its checksums (the codec already has
// its own tests for those).
func parseScriptedCommand(b []byte) (cmd byte, params []byte, ok bool) {
	if len(b) < 7 || b[0] != 0x00 || b[1] != 0x00 || b[2] != 0xFF {
		return 0, nil, false
	}
	dataLen := int(b[3])
	if len(b) < 7+dataLen {
		return 0, nil, false
	}
	return b[6], b[7 : 5+dataLen], true
}

// newHappyPathPort returns a fakePort pre-wired with handlers for every
// command the shared preamble/postamble issue, so workflow-level tests only
// need to override InListPassiveTarget and InDataExchange.
func newHappyPathPort() *fakePort {
	p := newFakePort()
	p.onOK(cmdSAMConfiguration, cmdSAMConfiguration+1, nil)
	p.onOK(cmdGetFirmwareVersion, cmdGetFirmwareVersion+1, []byte{0x32, 0x01, 0x06, 0x07})
	p.onOK(cmdRFConfiguration, cmdRFConfiguration+1, nil)
	p.onOK(cmdInRelease, cmdInRelease+1, nil)
	p.onOK(cmdPowerDown, cmdPowerDown+1, nil)
	p.onOK(cmdSetParameters, cmdSetParameters+1, nil)
	return p
}

// dispatcherBackedExchange wires InDataExchange straight into a Dispatcher,
// turning the fake port into an in-process emulated card.
func dispatcherBackedExchange(d Dispatcher) fakeHandler {
	return func(params []byte) (byte, []byte, bool) {
		if len(params) < 1 {
			return 0, nil, false
		}
		rapdu := d.HandleAPDU(params[1:])
		return cmdInDataExchange + 1, append([]byte{0x00}, rapdu...), true
	}
}

// targetFoundExchange builds the InListPassiveTarget payload for one
// 14443A target with the given UID and no ATS.
func targetFoundExchange(uid []byte) (byte, []byte, bool) {
	payload := []byte{0x01, 0x01, 0x00, 0x04, 0x08, byte(len(uid))}
	payload = append(payload, uid...)
	return cmdInListPassiveTarget + 1, payload, true
}

func noTargetExchange([]byte) (byte, []byte, bool) {
	return cmdInListPassiveTarget + 1, []byte{0x00}, true
}
