package pn532

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// EmulationHandle is returned by StartEmulation. The external layer keeps
// at most one such handle and rejects concurrent starts (SPEC_FULL.md §1,
// "Process-wide emulation state" — that gate lives outside the core).
type EmulationHandle struct {
	ID         uuid.UUID
	cancelled  atomic.Bool
	done       chan struct{}
	dispatcher Dispatcher
}

// Stop raises the cooperative cancellation signal. It does not block; the
// loop finishes cleanly at its next polling boundary and closes Done().
func (h *EmulationHandle) Stop() {
	h.cancelled.Store(true)
}

// Done returns a channel that is closed once the emulation loop has
// actually exited.
func (h *EmulationHandle) Done() <-chan struct{} {
	return h.done
}

// Status reports whether the loop is still running.
func (h *EmulationHandle) Status() string {
	select {
	case <-h.done:
		return "stopped"
	default:
		if h.cancelled.Load() {
			return "stopping"
		}
		return "running"
	}
}

// StartEmulation opens the transport, configures the PN532 for ISO14443-4
// PICC emulation, and runs the emulation loop from spec.md §4.7 on its own
// goroutine until the returned handle is stopped. The handle's cancellation
// flag is checked at the top of both loops and between every command
// (spec.md §5); there is no preemptive kill. d.mu is acquired here and held
// for as long as the loop is active — across the goroutine boundary — so no
// other public workflow can run concurrently with an active emulation
// session (spec.md §5: "the emulation loop runs in its own worker, holding
// the lock the entire time it is active").
func (d *Device) StartEmulation(dispatcher Dispatcher) (*EmulationHandle, error) {
	d.mu.Lock()

	if err := d.t.Open(); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	if err := d.t.WakeUp(); err != nil {
		d.t.Close()
		d.mu.Unlock()
		return nil, err
	}
	if !d.cmd.samConfiguration() {
		d.t.Close()
		d.mu.Unlock()
		return nil, newError(ErrTransportUnavailable, "SAMConfiguration", nil)
	}
	if !d.cmd.tuneRF() {
		d.t.Close()
		d.mu.Unlock()
		return nil, newError(ErrTransportUnavailable, "RFConfiguration", nil)
	}
	if !d.cmd.setParametersEmulation() {
		d.t.Close()
		d.mu.Unlock()
		return nil, newError(ErrTransportUnavailable, "SetParameters", nil)
	}

	h := &EmulationHandle{ID: uuid.New(), done: make(chan struct{}), dispatcher: dispatcher}
	go func() {
		defer d.mu.Unlock()
		d.runEmulationLoop(h)
	}()
	return h, nil
}

func (d *Device) runEmulationLoop(h *EmulationHandle) {
	defer close(h.done)
	defer d.t.Close()

	for !h.cancelled.Load() {
		if _, ok := d.cmd.tgInitAsTarget(d.cfg.InnerLoopTimeout); !ok {
			continue // no reader present
		}
		d.innerLoop(h)
	}
}

// innerLoop ping-pongs C-APDUs/R-APDUs via the configured dispatcher until
// the reader disconnects, is released, or too many consecutive TgGetData
// timeouts occur (spec.md §4.7).
func (d *Device) innerLoop(h *EmulationHandle) {
	consecutiveTimeouts := 0
	for !h.cancelled.Load() {
		data, ok := d.cmd.tgGetData(d.cfg.InnerLoopTimeout)
		if !ok {
			consecutiveTimeouts++
			if consecutiveTimeouts >= d.cfg.TgGetMaxConsecutiveTimeouts {
				return
			}
			continue
		}
		consecutiveTimeouts = 0

		status := data[2]
		if status != 0x00 {
			// 0x29 = released by initiator; any other non-zero status also
			// ends this reader session.
			return
		}

		if h.cancelled.Load() {
			return
		}

		capdu := data[3:]
		rapdu := h.dispatcher.HandleAPDU(capdu)

		setData, ok := d.cmd.tgSetData(rapdu, d.cfg.InnerLoopTimeout)
		if !ok {
			return
		}
		if setData[2] != 0x00 {
			return
		}
	}
}
