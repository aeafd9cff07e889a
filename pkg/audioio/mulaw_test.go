package audioio

import (
	"bytes"
	"testing"
)

func TestEncodeULawSample_KnownValues(t *testing.T) {
	tests := []struct {
		name string
		in   int16
		want byte
	}{
		{"zero", 0, 0xFF},
		{"max positive clips", 32767, 0x80},
		{"max negative clips", -32768, 0x00},
		{"small positive", 8, 0xFE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeULawSample(tt.in); got != tt.want {
				t.Errorf("EncodeULawSample(%d) = 0x%02x, want 0x%02x", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeULawSample_KnownValues(t *testing.T) {
	if got := DecodeULawSample(0xFF); got != 0 {
		t.Errorf("0xFF decodes to %d, want 0", got)
	}
	if got := DecodeULawSample(0x80); got != 32124 {
		t.Errorf("0x80 decodes to %d, want 32124", got)
	}
	if got := DecodeULawSample(0x00); got != -32124 {
		t.Errorf("0x00 decodes to %d, want -32124", got)
	}
}

func TestULawRoundTripWithinQuantization(t *testing.T) {
	for s := -32000; s <= 32000; s += 37 {
		in := int16(s)
		out := DecodeULawSample(EncodeULawSample(in))

		diff := int(out) - int(in)
		if diff < 0 {
			diff = -diff
		}
		abs := s
		if abs < 0 {
			abs = -abs
		}
		if tol := abs/16 + 16; diff > tol {
			t.Fatalf("sample %d decoded to %d (diff %d > %d)", in, out, diff, tol)
		}
	}
}

func TestULawByteStable(t *testing.T) {
	// Every mu-law code must survive decode then encode. The two zero codes
	// (0x7F negative zero, 0xFF positive zero) both land on 0xFF.
	for i := 0; i < 256; i++ {
		b := byte(i)
		got := EncodeULawSample(DecodeULawSample(b))
		want := b
		if b == 0x7F {
			want = 0xFF
		}
		if got != want {
			t.Errorf("code 0x%02x re-encoded to 0x%02x", b, got)
		}
	}
}

func TestPCM16BytesToULaw(t *testing.T) {
	ulaw := []byte{0xFF, 0x80, 0x00, 0x7A}
	pcm := SamplesToBytes(DecodeULaw(ulaw))
	if back := PCM16BytesToULaw(append(pcm, 0x01)); !bytes.Equal(back, ulaw) {
		t.Errorf("got %x, want %x (odd trailing byte dropped)", back, ulaw)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	raw := []byte{0xFF, 0x7E, 0x01}
	data, err := DecodePayload(EncodePayload(raw))
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if !bytes.Equal(data, raw) {
		t.Errorf("got %x, want %x", data, raw)
	}

	if _, err := DecodePayload("not base64!!"); err == nil {
		t.Error("expected error for invalid payload")
	}
}

func TestChunk(t *testing.T) {
	buf := make([]byte, 400)

	chunks := Chunk(buf, FrameBytes)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 160 || len(chunks[2]) != 80 {
		t.Errorf("unexpected chunk sizes %d/%d", len(chunks[0]), len(chunks[2]))
	}

	if got := Chunk(buf, 0); len(got) != 1 {
		t.Errorf("size 0 should return one chunk, got %d", len(got))
	}
	if got := Chunk(nil, 160); got != nil {
		t.Errorf("nil buffer should return nil, got %v", got)
	}
}

func TestSilence(t *testing.T) {
	s := Silence(20)
	if len(s) != FrameBytes {
		t.Fatalf("expected %d bytes, got %d", FrameBytes, len(s))
	}
	if ULawEnergy(s) != 0 {
		t.Error("silence should have zero energy")
	}
}
