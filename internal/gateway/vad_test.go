package gateway

import (
	"encoding/binary"
	"testing"
	"time"
)

// pcmFrame builds a constant-amplitude PCM16LE frame; its RMS equals level.
func pcmFrame(level int16, samples int) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(level))
	}
	return buf
}

// testClock steps a fake time source by a fixed amount per call site.
type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSegmenter(cfg VADConfig) (*segmenter, *testClock) {
	s := newSegmenter(cfg)
	clk := &testClock{t: time.Unix(1700000000, 0)}
	s.now = clk.now
	return s, clk
}

func TestSegmenterIgnoresLeadingSilence(t *testing.T) {
	s, _ := newTestSegmenter(VADConfig{})

	for i := 0; i < 20; i++ {
		if utt, ok := s.feed(pcmFrame(50, 2048)); ok {
			t.Fatalf("frame %d: unexpected utterance of %d bytes", i, len(utt))
		}
	}
	if s.inSpeech {
		t.Error("segmenter entered speech on silence")
	}
}

func TestSegmenterCompletesUtterance(t *testing.T) {
	s, clk := newTestSegmenter(VADConfig{MinUtteranceBytes: 1})

	// 4 loud frames, then silence past the limit.
	for i := 0; i < 4; i++ {
		if _, ok := s.feed(pcmFrame(500, 2048)); ok {
			t.Fatalf("utterance ended during speech at frame %d", i)
		}
	}
	if _, ok := s.feed(pcmFrame(50, 2048)); ok {
		t.Fatal("utterance ended before silence limit")
	}
	clk.advance(2 * time.Second)

	utt, ok := s.feed(pcmFrame(50, 2048))
	if !ok {
		t.Fatal("no utterance after silence limit")
	}
	// 4 speech frames + 2 trailing silence frames, 4096 bytes each.
	if len(utt) != 6*4096 {
		t.Errorf("utterance length = %d, want %d", len(utt), 6*4096)
	}
	if s.inSpeech {
		t.Error("segmenter still in speech after finalize")
	}
}

func TestSegmenterDropsShortBurst(t *testing.T) {
	s, clk := newTestSegmenter(VADConfig{MinUtteranceBytes: 100000})

	s.feed(pcmFrame(500, 2048))
	s.feed(pcmFrame(50, 2048))
	clk.advance(2 * time.Second)

	if _, ok := s.feed(pcmFrame(50, 2048)); ok {
		t.Error("short burst should be dropped, not returned")
	}
	if s.inSpeech {
		t.Error("segmenter should reset after a dropped burst")
	}
}

func TestSegmenterMidLevelExtendsSpeech(t *testing.T) {
	s, clk := newTestSegmenter(VADConfig{MinUtteranceBytes: 1})

	s.feed(pcmFrame(500, 2048))
	s.feed(pcmFrame(50, 2048)) // silence starts
	clk.advance(time.Second)
	// A frame between the thresholds resets the silence window.
	s.feed(pcmFrame(200, 2048))
	clk.advance(time.Second)
	if _, ok := s.feed(pcmFrame(50, 2048)); ok {
		t.Fatal("silence window should have been reset by the mid-level frame")
	}
	clk.advance(2 * time.Second)
	if _, ok := s.feed(pcmFrame(50, 2048)); !ok {
		t.Fatal("utterance should complete after a full silence window")
	}
}

func TestSegmenterForceFinalizesRunOn(t *testing.T) {
	s, _ := newTestSegmenter(VADConfig{MinUtteranceBytes: 1})

	frame := pcmFrame(500, 2048)
	var utt []byte
	var ok bool
	for i := 0; i < 1024; i++ {
		if utt, ok = s.feed(frame); ok {
			break
		}
	}
	if !ok {
		t.Fatal("run-on speech never finalized")
	}
	if len(utt) < maxUtteranceBytes {
		t.Errorf("forced utterance = %d bytes, want >= %d", len(utt), maxUtteranceBytes)
	}
}

func TestSegmenterReset(t *testing.T) {
	s, _ := newTestSegmenter(VADConfig{})

	s.feed(pcmFrame(500, 2048))
	s.reset()
	if s.inSpeech || len(s.buf) != 0 {
		t.Error("reset did not clear segmenter state")
	}
}
