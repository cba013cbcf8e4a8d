package pn532

import (
	"testing"
	"time"
)

func newTestEmulationDevice(port *fakePort) *Device {
	cfg := DefaultConfig()
	cfg.WakeSleep = 0
	cfg.PostResetSleep = 0
	cfg.InnerLoopTimeout = 0
	cfg.TgGetMaxConsecutiveTimeouts = 1

	tr := NewTransport("fake", cfg, nil)
	tr.dial = func(string, int) (serialPort, error) { return port, nil }
	return &Device{cfg: cfg, t: tr, cmd: newCommandEngine(tr, cfg)}
}

func TestStartEmulationStopIsCooperative(t *testing.T) {
	port := newHappyPathPort()
	// No reader ever shows up: TgInitAsTarget always reports failure, so
	// runEmulationLoop just spins on the cancellation check.
	port.on(cmdTgInitAsTarget, func([]byte) (byte, []byte, bool) { return 0, nil, false })

	d := newTestEmulationDevice(port)
	h, err := d.StartEmulation(NewVaultDispatcher(nil, 256))
	if err != nil {
		t.Fatalf("StartEmulation: %v", err)
	}
	if h.Status() != "running" {
		t.Errorf("Status() before Stop = %q, want running", h.Status())
	}

	h.Stop()

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("emulation loop did not stop after Stop()")
	}
	if h.Status() != "stopped" {
		t.Errorf("Status() after Done = %q, want stopped", h.Status())
	}
}

func TestInnerLoopDispatchesThroughToTgSetData(t *testing.T) {
	port := newHappyPathPort()
	port.on(cmdTgInitAsTarget, func([]byte) (byte, []byte, bool) { return cmdTgInitAsTarget + 1, []byte{0x00}, true })

	vault := NewVaultDispatcher(nil, 256)
	capdu := selectAPDU(vaultAID)
	served := false
	port.on(cmdTgGetData, func([]byte) (byte, []byte, bool) {
		if served {
			return 0, nil, false // every subsequent poll times out
		}
		served = true
		return cmdTgGetData + 1, append([]byte{0x00}, capdu...), true
	})

	var recordedRAPDU []byte
	setDataCalls := make(chan []byte, 1)
	port.on(cmdTgSetData, func(params []byte) (byte, []byte, bool) {
		setDataCalls <- append([]byte(nil), params...)
		return cmdTgSetData + 1, []byte{0x00}, true
	})

	d := newTestEmulationDevice(port)
	h, err := d.StartEmulation(vault)
	if err != nil {
		t.Fatalf("StartEmulation: %v", err)
	}
	defer h.Stop()

	select {
	case recordedRAPDU = <-setDataCalls:
	case <-time.After(5 * time.Second):
		t.Fatal("TgSetData was never called with the dispatcher's response")
	}
	if len(recordedRAPDU) < 2 {
		t.Fatalf("R-APDU too short: % X", recordedRAPDU)
	}
	sw1, sw2 := recordedRAPDU[len(recordedRAPDU)-2], recordedRAPDU[len(recordedRAPDU)-1]
	if sw1 != 0x90 || sw2 != 0x00 {
		t.Errorf("SELECT status via the emulation loop = %02X%02X, want 9000", sw1, sw2)
	}

	h.Stop()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("emulation loop did not stop after Stop()")
	}
}
