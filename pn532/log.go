package pn532

import (
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Direction identifies which way a Log Entry's bytes travelled.
type Direction string

const (
	// DirTX is an outbound frame written to the PN532.
	DirTX Direction = "TX"
	// DirRX is an inbound frame read from the PN532.
	DirRX Direction = "RX"
	// DirERR marks a log entry describing a failure rather than bytes on
	// the wire.
	DirERR Direction = "ERR"
)

// LogEntry is one line of the wire-level trace every core operation
// returns to its caller (spec.md §3, §6).
type LogEntry struct {
	Timestamp time.Time
	Direction Direction
	Hex       string
}

const defaultRingCapacity = 512

// logRing is a bounded ring buffer of LogEntry, safe for concurrent use.
// A fresh one is created per-workflow (the "log trace of every TX/RX hex
// payload" is scoped to the call that produced it); the external caller is
// responsible for any longer-lived aggregation.
type logRing struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
	logger   *zap.Logger
}

func newLogRing(capacity int, logger *zap.Logger) *logRing {
	if capacity <= 0 {
		capacity = defaultRingCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &logRing{capacity: capacity, logger: logger}
}

func (r *logRing) append(dir Direction, data []byte) {
	entry := LogEntry{
		Timestamp: time.Now(),
		Direction: dir,
		Hex:       hex.EncodeToString(data),
	}
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	if len(r.entries) > r.capacity {
		r.entries = r.entries[len(r.entries)-r.capacity:]
	}
	r.mu.Unlock()

	r.logger.Debug("pn532 wire trace",
		zap.String("direction", string(dir)),
		zap.String("hex", entry.Hex),
	)
}

func (r *logRing) appendErr(op string, err error) {
	entry := LogEntry{
		Timestamp: time.Now(),
		Direction: DirERR,
		Hex:       op + ": " + err.Error(),
	}
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	if len(r.entries) > r.capacity {
		r.entries = r.entries[len(r.entries)-r.capacity:]
	}
	r.mu.Unlock()

	r.logger.Debug("pn532 operation error", zap.String("op", op), zap.Error(err))
}

// Snapshot returns a read-only copy of the entries recorded so far.
func (r *logRing) Snapshot() []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]LogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}
