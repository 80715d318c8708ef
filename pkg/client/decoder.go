package client

import (
	"errors"
	"fmt"

	"github.com/zaf/g711"
	"layeh.com/gopus"
)

// ErrBadSegment is returned by decoders for malformed or truncated segment
// data. The playback engine skips such segments and moves on — a stalled
// queue is a worse failure than a dropped segment.
var ErrBadSegment = errors.New("client: malformed audio segment")

// Decoder turns one inbound audio segment into PCM16LE mono at the playback
// sample rate. The segment codec is a fixed deployment-time agreement with
// the gateway, not negotiated on the wire, so one Decoder serves the whole
// session. Decoders are used from the playback dispatch goroutine only.
type Decoder interface {
	// Decode returns the segment's PCM. It must return an error wrapping
	// [ErrBadSegment] for data it cannot decode, and must not panic on
	// arbitrary input.
	Decode(segment []byte) ([]byte, error)

	// SampleRate is the rate of the PCM this decoder produces, in Hz.
	SampleRate() int
}

// ─── PCM16 passthrough ────────────────────────────────────────────────────────

// PCM16Decoder handles gateways that emit raw PCM16LE segments (the
// reference deployment's pcm_16000 synthesis output). Decode validates
// alignment and otherwise passes the buffer through untouched.
type PCM16Decoder struct {
	// Rate is the PCM sample rate. Zero means 16000.
	Rate int
}

func (d *PCM16Decoder) Decode(segment []byte) ([]byte, error) {
	if len(segment) == 0 || len(segment)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not whole int16 samples", ErrBadSegment, len(segment))
	}
	return segment, nil
}

func (d *PCM16Decoder) SampleRate() int {
	if d.Rate <= 0 {
		return 16000
	}
	return d.Rate
}

// ─── Opus ─────────────────────────────────────────────────────────────────────

const (
	opusMaxFrameMs = 120
)

// OpusDecoder decodes Opus packets for deployments where the gateway
// compresses synthesis segments. One decoder per session: Opus decoders are
// stateful across consecutive packets.
type OpusDecoder struct {
	dec  *gopus.Decoder
	rate int
}

// NewOpusDecoder creates an Opus decoder producing mono PCM at the given
// sample rate (must be one of the Opus-supported rates, e.g. 16000, 48000).
func NewOpusDecoder(sampleRate int) (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(sampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("client: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec, rate: sampleRate}, nil
}

func (d *OpusDecoder) Decode(segment []byte) ([]byte, error) {
	if len(segment) == 0 {
		return nil, fmt.Errorf("%w: empty opus packet", ErrBadSegment)
	}
	// Allow up to the maximum Opus frame duration per packet.
	frameSize := d.rate * opusMaxFrameMs / 1000
	pcm, err := d.dec.Decode(segment, frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("%w: opus: %v", ErrBadSegment, err)
	}
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b, nil
}

func (d *OpusDecoder) SampleRate() int { return d.rate }

// ─── G.711 ────────────────────────────────────────────────────────────────────

// G711Law selects the companding law for [G711Decoder].
type G711Law int

const (
	G711Ulaw G711Law = iota
	G711Alaw
)

// G711Decoder decodes µ-law or A-law segments for telephony tenants that
// bridge PSTN audio through the gateway. G.711 is always 8 kHz mono.
type G711Decoder struct {
	Law G711Law
}

func (d *G711Decoder) Decode(segment []byte) ([]byte, error) {
	if len(segment) == 0 {
		return nil, fmt.Errorf("%w: empty g711 segment", ErrBadSegment)
	}
	if d.Law == G711Alaw {
		return g711.DecodeAlaw(segment), nil
	}
	return g711.DecodeUlaw(segment), nil
}

func (d *G711Decoder) SampleRate() int { return 8000 }
