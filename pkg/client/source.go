package client

import "context"

// Source is the microphone abstraction. Implementations wrap whatever
// delivers capture blocks (a portaudio stream, a file, a test fixture) and
// present them as float32 sample blocks in [-1.0, 1.0].
//
// ReadBlock blocks until one capture block is available, the source is
// exhausted (io.EOF) or ctx is done. A zero-length block is legal and means
// "nothing captured this callback" — the pipeline skips it and waits for the
// next one.
type Source interface {
	ReadBlock(ctx context.Context) ([]float32, error)

	// SampleRate is the capture rate in Hz.
	SampleRate() int

	Close() error
}
