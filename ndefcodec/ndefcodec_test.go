package ndefcodec

import "testing"

func TestEncodeTextDecodeRoundTrip(t *testing.T) {
	raw, err := EncodeText("hello vault", "en")
	if err != nil {
		t.Fatalf("EncodeText: %v", err)
	}

	records, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
}

func TestDecodeEmptyMessage(t *testing.T) {
	records, err := Decode(nil)
	if err != nil {
		t.Fatalf("Decode(nil): %v", err)
	}
	if records != nil {
		t.Errorf("expected no records for an empty message, got %v", records)
	}
}
