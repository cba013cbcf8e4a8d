package pn532

import (
	"fmt"
	"time"
)

// PN532 command codes used by this driver (spec.md §4.3).
const (
	cmdSAMConfiguration     byte = 0x14
	cmdGetFirmwareVersion   byte = 0x02
	cmdRFConfiguration      byte = 0x32
	cmdInListPassiveTarget  byte = 0x4A
	cmdInDataExchange       byte = 0x40
	cmdInRelease            byte = 0x44
	cmdPowerDown            byte = 0x16
	cmdSetParameters        byte = 0x12
	cmdTgInitAsTarget       byte = 0x8C
	cmdTgGetData            byte = 0x86
	cmdTgSetData            byte = 0x8E
)

// Response codes are the command code + 1, per the PN532 host protocol
// (D5 <cmd+1> ...).
const (
	respGetFirmwareVersion byte = cmdGetFirmwareVersion + 1
	respInListPassiveTarget byte = cmdInListPassiveTarget + 1
	respInDataExchange     byte = cmdInDataExchange + 1
	respTgInitAsTarget     byte = cmdTgInitAsTarget + 1
	respTgGetData          byte = cmdTgGetData + 1
	respTgSetData          byte = cmdTgSetData + 1
)

// targetTg is the fixed target number used throughout (the core never
// does multi-target activation, per spec.md Non-goals).
const targetTg byte = 0x01

// FirmwareVersion is the parsed response of GetFirmwareVersion.
type FirmwareVersion struct {
	IC  byte
	Ver byte
	Rev byte
	Support byte
}

// DeviceName formats the IC byte the way the original driver does: as hex,
// not decimal. IC=0x32 happens to format to the string "PN532" — the
// firmware's actual product name — purely because 0x32 read as two ASCII
// hex digits spells "32". That's a coincidence of this one byte value, not
// a documented encoding; later IC revisions are not guaranteed to line up
// the same way (spec.md §9).
func (f FirmwareVersion) DeviceName() string {
	return fmt.Sprintf("PN5%02X", f.IC)
}

// commandEngine is a thin typed façade over Transport, one method per
// PN532 command this driver uses (spec.md §4.3).
type commandEngine struct {
	t   *Transport
	cfg Config
}

func newCommandEngine(t *Transport, cfg Config) *commandEngine {
	return &commandEngine{t: t, cfg: cfg}
}

// samConfiguration configures the SAM in "normal" mode (no SAM present, no
// IRQ), with the recovery ladder from spec.md §4.2: up to SoftRetries soft
// retries (flush + delay), then one hard DTR reset + re-wake + further
// retries, then a full close/open + re-wake + further retries, then give
// up returning false.
func (c *commandEngine) samConfiguration() bool {
	params := []byte{0x01, 0x00}

	if _, ok := c.t.SendCommand(cmdSAMConfiguration, params, c.cfg.DefaultTimeout); ok {
		return true
	}

	for i := 0; i < c.cfg.SoftRetries; i++ {
		_ = c.t.Flush()
		sleepFor(c.cfg.SoftRetryDelay)
		if _, ok := c.t.SendCommand(cmdSAMConfiguration, params, c.cfg.DefaultTimeout); ok {
			return true
		}
	}

	if err := c.t.HardReset(); err == nil {
		_ = c.t.WakeUp()
		for i := 0; i < c.cfg.HardResetRetries; i++ {
			if _, ok := c.t.SendCommand(cmdSAMConfiguration, params, c.cfg.DefaultTimeout); ok {
				return true
			}
			sleepFor(c.cfg.SoftRetryDelay)
		}
	}

	if err := c.t.reopen(); err == nil {
		_ = c.t.WakeUp()
		for i := 0; i < c.cfg.ReopenRetries; i++ {
			if _, ok := c.t.SendCommand(cmdSAMConfiguration, params, c.cfg.DefaultTimeout); ok {
				return true
			}
			sleepFor(c.cfg.SoftRetryDelay)
		}
	}

	return false
}

func (c *commandEngine) getFirmwareVersion() (FirmwareVersion, bool) {
	data, ok := c.t.SendCommand(cmdGetFirmwareVersion, nil, c.cfg.DefaultTimeout)
	if !ok || len(data) < 6 || data[1] != respGetFirmwareVersion {
		return FirmwareVersion{}, false
	}
	return FirmwareVersion{IC: data[2], Ver: data[3], Rev: data[4], Support: data[5]}, true
}

// rfConfiguration writes one RFConfiguration item/bytes pair.
func (c *commandEngine) rfConfiguration(item byte, bytesOut []byte) bool {
	params := append([]byte{item}, bytesOut...)
	_, ok := c.t.SendCommand(cmdRFConfiguration, params, c.cfg.DefaultTimeout)
	return ok
}

// tuneRF applies the two RFConfiguration calls every workflow issues before
// any RF exchange (spec.md §4.3).
func (c *commandEngine) tuneRF() bool {
	if !c.rfConfiguration(0x05, []byte{0xFF, 0x01, 0xFF}) {
		return false
	}
	return c.rfConfiguration(0x02, []byte{0x00, 0x0B, 0x0E})
}

// inListPassiveTarget lists one 14443A-106kbps passive target.
func (c *commandEngine) inListPassiveTarget() ([]byte, bool) {
	params := []byte{0x01, 0x00}
	data, ok := c.t.SendCommand(cmdInListPassiveTarget, params, c.cfg.DefaultTimeout)
	if !ok || len(data) < 2 || data[1] != respInListPassiveTarget {
		return nil, false
	}
	return data, true
}

// inDataExchange sends apdu to target tg and returns the raw D5 41 <status> ... response.
func (c *commandEngine) inDataExchange(tg byte, apdu []byte, timeout time.Duration) ([]byte, bool) {
	params := append([]byte{tg}, apdu...)
	data, ok := c.t.SendCommand(cmdInDataExchange, params, timeout)
	if !ok || len(data) < 3 || data[1] != respInDataExchange {
		return nil, false
	}
	return data, true
}

func (c *commandEngine) inRelease(tg byte) bool {
	_, ok := c.t.SendCommand(cmdInRelease, []byte{tg}, c.cfg.DefaultTimeout)
	return ok
}

// powerDown puts the PN532 to sleep with wake-on-HSU enabled.
func (c *commandEngine) powerDown() bool {
	_, ok := c.t.SendCommand(cmdPowerDown, []byte{0xF0}, c.cfg.DefaultTimeout)
	return ok
}

func (c *commandEngine) setParameters(flags byte) bool {
	_, ok := c.t.SendCommand(cmdSetParameters, []byte{flags}, c.cfg.DefaultTimeout)
	return ok
}

// setParametersEmulation sets fAutomaticATR_RES | fISO14443-4_PICC (0x24),
// required before TgInitAsTarget.
func (c *commandEngine) setParametersEmulation() bool {
	return c.setParameters(0x24)
}

// tgInitAsTargetParams builds the exact TgInitAsTarget parameter layout
// from spec.md §4.3: mode, MIFARE params (ATQA/NFCID1/SAK), FeliCa params
// (18 zero bytes), NFCID3t, empty general bytes, and historical bytes
// (0x80 — category indicator only, required for Android to recognize the
// emulated Type 4 Tag).
func tgInitAsTargetParams() []byte {
	params := make([]byte, 0, 1+6+18+10+1+1+1)
	params = append(params, 0x05)                              // mode: PassiveOnly | PICCOnly
	params = append(params, 0x04, 0x00, 0x01, 0x02, 0x03, 0x20) // MIFARE params
	params = append(params, make([]byte, 18)...)                // FeliCa params
	params = append(params, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A) // NFCID3t
	params = append(params, 0x00)                               // general bytes length
	params = append(params, 0x01, 0x80)                         // historical bytes length + category indicator
	return params
}

func (c *commandEngine) tgInitAsTarget(timeout time.Duration) ([]byte, bool) {
	data, ok := c.t.SendCommand(cmdTgInitAsTarget, tgInitAsTargetParams(), timeout)
	if !ok || len(data) < 2 || data[1] != respTgInitAsTarget {
		return nil, false
	}
	return data, true
}

func (c *commandEngine) tgGetData(timeout time.Duration) ([]byte, bool) {
	data, ok := c.t.SendCommand(cmdTgGetData, nil, timeout)
	if !ok || len(data) < 3 || data[1] != respTgGetData {
		return nil, false
	}
	return data, true
}

func (c *commandEngine) tgSetData(apdu []byte, timeout time.Duration) ([]byte, bool) {
	data, ok := c.t.SendCommand(cmdTgSetData, apdu, timeout)
	if !ok || len(data) < 3 || data[1] != respTgSetData {
		return nil, false
	}
	return data, true
}
