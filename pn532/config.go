package pn532

import "time"

// Config bundles the timing and sizing constants the driver needs, so that
// the source of truth for "how long do we wait" lives in one place instead
// of being inlined across the transport, workflow, and emulation code.
type Config struct {
	// Baud is the UART line speed. The PN532 HSU transport is fixed at
	// 115200 8-N-1.
	Baud int

	// WakeSleep is how long WakeUp waits after writing the sync preamble
	// before flushing and issuing the sacrificial GetFirmwareVersion.
	WakeSleep time.Duration
	// PostResetSleep is how long Open waits after pulsing DTR low.
	PostResetSleep time.Duration
	// HardResetSleep is how long HardReset waits after its longer DTR pulse.
	HardResetSleep time.Duration
	// ResetPulseAssert is how long DTR is held asserted during Open's reset pulse.
	ResetPulseAssert time.Duration
	// HardResetPulseAssert is how long DTR is held asserted during HardReset.
	HardResetPulseAssert time.Duration

	// ApduInterframe is the delay before every InDataExchange, giving a
	// PN532-emulated peer time to loop back from TgSetData to TgGetData.
	ApduInterframe time.Duration
	// ApduRetryDelay is the delay before the single short-response retry
	// in the APDU exchange helper.
	ApduRetryDelay time.Duration

	// InnerLoopTimeout bounds each TgGetData / TgInitAsTarget call in the
	// emulation loop.
	InnerLoopTimeout time.Duration
	// TgGetMaxConsecutiveTimeouts is how many consecutive TgGetData
	// timeouts the emulation loop tolerates before re-arming.
	TgGetMaxConsecutiveTimeouts int

	// VaultBufferSize is the fixed size of the Vault's flat storage.
	VaultBufferSize int
	// ReadChunk is the NDEF read chunk size used by ReadNDEF (the MLe
	// advertised in the Capability Container).
	ReadChunk int
	// WriteChunk is the NDEF write chunk ceiling used by WriteNDEF (bounded
	// by the CC's MLc, but never exceeding this).
	WriteChunk int

	// SoftRetries, HardResetRetries and ReopenRetries bound the recovery
	// ladder inside SAMConfiguration: soft retry (flush + delay), then
	// hard DTR reset + re-wake + retries, then a full close/open + re-wake
	// + retries, then give up.
	SoftRetries      int
	HardResetRetries int
	ReopenRetries    int
	SoftRetryDelay   time.Duration

	// DefaultTimeout is used by commands that don't specify their own
	// deadline explicitly.
	DefaultTimeout time.Duration
}

// DefaultConfig returns the timing bundle matching the values named in the
// specification: wake_sleep=200ms, post_reset_sleep=1.5s,
// hard_reset_sleep=3s, apdu_interframe=20ms, inner_loop_timeout=2s,
// tgget_max_consecutive_timeouts=3, vault_buffer=256, read_chunk=59,
// write_chunk=52.
func DefaultConfig() Config {
	return Config{
		Baud: 115200,

		WakeSleep:            200 * time.Millisecond,
		PostResetSleep:       1500 * time.Millisecond,
		HardResetSleep:       3 * time.Second,
		ResetPulseAssert:     100 * time.Millisecond,
		HardResetPulseAssert: 500 * time.Millisecond,

		ApduInterframe: 20 * time.Millisecond,
		ApduRetryDelay: 100 * time.Millisecond,

		InnerLoopTimeout:            2 * time.Second,
		TgGetMaxConsecutiveTimeouts: 3,

		VaultBufferSize: 256,
		ReadChunk:       59,
		WriteChunk:      52,

		SoftRetries:      3,
		HardResetRetries: 3,
		ReopenRetries:    3,
		SoftRetryDelay:   100 * time.Millisecond,

		DefaultTimeout: 2 * time.Second,
	}
}
