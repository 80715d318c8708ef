package gateway

import (
	"time"

	"github.com/voicewire/voicewire/pkg/audio"
)

// Server-side voice activity segmentation defaults. Levels are RMS over
// 16-bit samples.
const (
	defaultVoiceRMS   = 300
	defaultSilenceRMS = 150

	// defaultSilenceLimit is how much trailing silence ends an utterance.
	defaultSilenceLimit = 1500 * time.Millisecond

	// defaultMinUtteranceBytes discards utterances too short to transcribe,
	// 8000 bytes is 250 ms of 16 kHz mono PCM16.
	defaultMinUtteranceBytes = 8000

	// maxUtteranceBytes force-finalizes a run-on utterance, about 32 s of
	// 16 kHz mono PCM16.
	maxUtteranceBytes = 1 << 20
)

// VADConfig tunes the segmenter. Zero fields take the package defaults.
type VADConfig struct {
	VoiceRMS          int
	SilenceRMS        int
	SilenceLimit      time.Duration
	MinUtteranceBytes int
}

// segmenter accumulates inbound capture frames into utterances. Speech
// starts on the first frame at or above the voice threshold; it ends once
// the level has stayed at or below the silence threshold for the silence
// limit. Frames between the two thresholds extend the utterance without
// ending it.
//
// Not safe for concurrent use; each session owns one.
type segmenter struct {
	voiceRMS     int
	silenceRMS   int
	silenceLimit time.Duration
	minBytes     int

	buf          []byte
	inSpeech     bool
	silenceSince time.Time

	now func() time.Time
}

func newSegmenter(cfg VADConfig) *segmenter {
	s := &segmenter{
		voiceRMS:     cfg.VoiceRMS,
		silenceRMS:   cfg.SilenceRMS,
		silenceLimit: cfg.SilenceLimit,
		minBytes:     cfg.MinUtteranceBytes,
		now:          time.Now,
	}
	if s.voiceRMS <= 0 {
		s.voiceRMS = defaultVoiceRMS
	}
	if s.silenceRMS <= 0 {
		s.silenceRMS = defaultSilenceRMS
	}
	if s.silenceLimit <= 0 {
		s.silenceLimit = defaultSilenceLimit
	}
	if s.minBytes <= 0 {
		s.minBytes = defaultMinUtteranceBytes
	}
	return s
}

// feed consumes one capture frame. When the frame completes an utterance of
// at least the minimum length, the utterance PCM is returned with ok true.
// Utterances under the minimum are dropped silently (coughs, pops).
func (s *segmenter) feed(frame []byte) (utterance []byte, ok bool) {
	rms := audio.RMS(frame)

	if !s.inSpeech {
		if rms < s.voiceRMS {
			return nil, false
		}
		s.inSpeech = true
		s.buf = s.buf[:0]
		s.silenceSince = time.Time{}
	}

	s.buf = append(s.buf, frame...)

	if rms <= s.silenceRMS {
		if s.silenceSince.IsZero() {
			s.silenceSince = s.now()
		}
		if s.now().Sub(s.silenceSince) >= s.silenceLimit {
			return s.finalize()
		}
	} else {
		s.silenceSince = time.Time{}
	}

	if len(s.buf) >= maxUtteranceBytes {
		return s.finalize()
	}
	return nil, false
}

// reset discards any partial utterance, for use when the session leaves the
// listening state.
func (s *segmenter) reset() {
	s.buf = s.buf[:0]
	s.inSpeech = false
	s.silenceSince = time.Time{}
}

func (s *segmenter) finalize() ([]byte, bool) {
	utt := make([]byte, len(s.buf))
	copy(utt, s.buf)
	s.reset()
	if len(utt) < s.minBytes {
		return nil, false
	}
	return utt, true
}
