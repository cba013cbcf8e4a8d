// Package ndefcodec decodes and encodes NDEF messages for the external
// collaborator boundary (SPEC_FULL.md §1): the core pn532 package only ever
// moves an NDEF message as an opaque byte slice, and this package is where
// those bytes become structured records for a caller that wants them.
package ndefcodec

import (
	"fmt"

	"github.com/hsanjuan/go-ndef"
)

// Record is the flattened view of one NDEF record handed back to callers,
// independent of go-ndef's own wire types.
type Record struct {
	TNF     byte
	Type    string
	ID      string
	Payload []byte
}

// Decode parses a raw NDEF message — the Type 4 Tag file body without its
// 2-byte length prefix, exactly what pn532.NDEFResult.Raw carries — into
// its component records.
func Decode(raw []byte) ([]Record, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	msg := ndef.NewMessage()
	if _, err := msg.Unmarshal(raw); err != nil {
		return nil, fmt.Errorf("ndefcodec: decode: %w", err)
	}

	records := make([]Record, 0, len(msg.Records))
	for _, r := range msg.Records {
		var payload []byte
		if r.Payload != nil {
			payload = r.Payload.Marshal()
		}
		records = append(records, Record{
			TNF:     r.TNF,
			Type:    r.Type,
			ID:      r.ID,
			Payload: payload,
		})
	}
	return records, nil
}

// EncodeText builds a single-record NDEF message carrying a UTF-8 text
// record, suitable for WriteNDEF's message argument. lang follows RFC 3066
// (e.g. "en").
func EncodeText(text, lang string) ([]byte, error) {
	msg := ndef.NewMessage()
	msg.Records = append(msg.Records, ndef.NewTextRecord(text, lang))
	return msg.Marshal()
}

// EncodeURI builds a single-record NDEF message carrying a URI record.
func EncodeURI(uri string) ([]byte, error) {
	msg := ndef.NewMessage()
	msg.Records = append(msg.Records, ndef.NewURIRecord(uri))
	return msg.Marshal()
}
