package client

import (
	"errors"
	"testing"
)

func TestPCM16Decoder(t *testing.T) {
	d := &PCM16Decoder{}
	if d.SampleRate() != 16000 {
		t.Errorf("default rate: got %d, want 16000", d.SampleRate())
	}

	valid := []byte{0x01, 0x02, 0x03, 0x04}
	got, err := d.Decode(valid)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if &got[0] != &valid[0] {
		t.Error("pcm passthrough should not copy")
	}

	for _, bad := range [][]byte{nil, {}, {0x01}, {0x01, 0x02, 0x03}} {
		if _, err := d.Decode(bad); !errors.Is(err, ErrBadSegment) {
			t.Errorf("decode %v: got %v, want ErrBadSegment", bad, err)
		}
	}
}

func TestG711Decoder(t *testing.T) {
	d := &G711Decoder{Law: G711Ulaw}
	if d.SampleRate() != 8000 {
		t.Errorf("rate: got %d, want 8000", d.SampleRate())
	}

	// One µ-law byte expands to one int16 sample.
	in := []byte{0xFF, 0x7F, 0x00, 0x80}
	out, err := d.Decode(in)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in)*2 {
		t.Errorf("expansion: got %d bytes, want %d", len(out), len(in)*2)
	}

	if _, err := d.Decode(nil); !errors.Is(err, ErrBadSegment) {
		t.Errorf("empty segment: got %v, want ErrBadSegment", err)
	}
}
