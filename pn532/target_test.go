package pn532

import (
	"bytes"
	"testing"
)

func TestParseTargetDescriptor(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantNil bool
		wantErr bool
		uid     []byte
		atqa    [2]byte
		sak     byte
		ats     []byte
	}{
		{
			name: "no card",
			data: []byte{0xD5, 0x4B, 0x00},
		},
		{
			name: "single target, no ATS",
			data: []byte{0xD5, 0x4B, 0x01, 0x01, 0x00, 0x04, 0x08, 0x04, 0xAA, 0xBB, 0xCC, 0xDD},
			uid:  []byte{0xAA, 0xBB, 0xCC, 0xDD},
			atqa: [2]byte{0x00, 0x04},
			sak:  0x08,
		},
		{
			name: "single target with ATS",
			data: []byte{
				0xD5, 0x4B, 0x01, 0x01, 0x00, 0x04, 0x20, 0x04, 0xAA, 0xBB, 0xCC, 0xDD,
				0x03, 0x78, 0x80, // ATSLen=3 (inclusive), two ATS bytes follow
			},
			uid:  []byte{0xAA, 0xBB, 0xCC, 0xDD},
			atqa: [2]byte{0x00, 0x04},
			sak:  0x20,
			ats:  []byte{0x78, 0x80},
		},
		{
			name:    "too short",
			data:    []byte{0xD5},
			wantErr: true,
		},
		{
			name:    "truncated before UID",
			data:    []byte{0xD5, 0x4B, 0x01, 0x01, 0x00, 0x04, 0x08, 0x04, 0xAA, 0xBB},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card, err := parseTargetDescriptor(tt.data)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantNil || len(tt.uid) == 0 && tt.name == "no card" {
				if card != nil {
					t.Fatalf("expected nil card, got %+v", card)
				}
				return
			}
			if !bytes.Equal(card.UID, tt.uid) {
				t.Errorf("UID = % X, want % X", card.UID, tt.uid)
			}
			if card.ATQA != tt.atqa {
				t.Errorf("ATQA = % X, want % X", card.ATQA, tt.atqa)
			}
			if card.SAK != tt.sak {
				t.Errorf("SAK = %02X, want %02X", card.SAK, tt.sak)
			}
			if !bytes.Equal(card.ATS, tt.ats) {
				t.Errorf("ATS = % X, want % X", card.ATS, tt.ats)
			}
		})
	}
}

func TestCardDescriptorUIDHex(t *testing.T) {
	card := CardDescriptor{UID: []byte{0xAA, 0xBB, 0xCC, 0xDD}}
	if got, want := card.UIDHex(), "aabbccdd"; got != want {
		t.Errorf("UIDHex() = %q, want %q", got, want)
	}
}
