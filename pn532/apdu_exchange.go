package pn532

import "time"

// exchange sends a single C-APDU to target tg via InDataExchange and
// returns its status word and response payload, per spec.md §4.5:
//
//  1. a fixed interframe delay (gives a PN532-emulated peer time to loop
//     back from TgSetData to TgGetData);
//  2. InDataExchange with a 2-second timeout;
//  3. a transport_unavailable error on a missing/too-short response;
//  4. the InDataExchange status byte (third payload byte) must be 0x00,
//     else an apdu_error(status);
//  5. the response bytes after the leading D5 41 <status>;
//  6. the ISO-DEP leak workaround: if the first response byte looks like
//     an I-block PCB with the CID bit set, the leading PCB+CID are
//     stripped;
//  7. the trailing two bytes are SW1/SW2; if fewer than two bytes remain,
//     retry once after a short delay, then fail.
func (c *commandEngine) exchange(op string, tg byte, apdu []byte) (sw1, sw2 byte, payload []byte, err error) {
	sleepFor(c.cfg.ApduInterframe)

	data, ok := c.inDataExchange(tg, apdu, 2*time.Second)
	if !ok {
		return 0, 0, nil, newError(ErrTransportUnavailable, op, nil)
	}

	status := data[2]
	if status != 0x00 {
		return 0, 0, nil, newAPDUStatusError(op, status)
	}

	resp := data[3:]
	resp = stripISODEPLeak(resp)

	if len(resp) >= 2 {
		sw1, sw2 = resp[len(resp)-2], resp[len(resp)-1]
		return sw1, sw2, resp[:len(resp)-2], nil
	}

	// Retry once, per spec.md §4.5 step 7.
	sleepFor(c.cfg.ApduRetryDelay)
	data, ok = c.inDataExchange(tg, apdu, 2*time.Second)
	if !ok {
		return 0, 0, nil, newError(ErrTransportUnavailable, op, nil)
	}
	status = data[2]
	if status != 0x00 {
		return 0, 0, nil, newAPDUStatusError(op, status)
	}
	resp = stripISODEPLeak(data[3:])
	if len(resp) < 2 {
		return 0, 0, nil, newError(ErrShortRead, op, nil)
	}
	sw1, sw2 = resp[len(resp)-2], resp[len(resp)-1]
	return sw1, sw2, resp[:len(resp)-2], nil
}

// stripISODEPLeak removes a leaked ISO-DEP I-block PCB+CID pair from the
// front of resp, if present. The PN532 can leak the protocol control byte
// of an I-block when the peer uses a channel identifier; such a byte has
// (b & 0xE8) == 0x08.
func stripISODEPLeak(resp []byte) []byte {
	if len(resp) >= 2 && (resp[0]&0xE8) == 0x08 {
		return resp[2:]
	}
	return resp
}
