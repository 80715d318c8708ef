// Command vwpipe is a headless Voicewire client for testing a gateway
// without audio hardware. It streams raw PCM16LE from a file or stdin as the
// microphone, writes the assistant's synthesised audio to a file or stdout,
// and prints transcripts on stderr.
//
// Capture input is paced at real time by default so the gateway's silence
// detection behaves as it would with a live microphone:
//
//	vwpipe -tenant acme -user u1 -in question.pcm -out answer.pcm
//	cat question.pcm | vwpipe -tenant acme -user u1 -in - -out - > answer.pcm
package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/voicewire/voicewire/pkg/client"
)

func main() {
	os.Exit(run())
}

func run() int {
	baseURL := flag.String("url", "ws://localhost:8080", "gateway base URL")
	tenantID := flag.String("tenant", "", "tenant ID (required)")
	userID := flag.String("user", "", "user ID (required)")
	inPath := flag.String("in", "-", "raw PCM16LE input file, or - for stdin")
	outPath := flag.String("out", "-", "raw PCM16LE output file, or - for stdout")
	rate := flag.Int("rate", 16000, "input sample rate in Hz")
	frameMs := flag.Int("frame-ms", 20, "capture block size in milliseconds")
	gain := flag.Float64("gain", 1.0, "capture gain multiplier")
	realtime := flag.Bool("realtime", true, "pace input at real time")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if *tenantID == "" || *userID == "" {
		fmt.Fprintln(os.Stderr, "vwpipe: -tenant and -user are required")
		return 2
	}

	in, err := openInput(*inPath)
	if err != nil {
		slog.Error("open input", "path", *inPath, "err", err)
		return 1
	}
	defer in.Close()

	out, err := openOutput(*outPath)
	if err != nil {
		slog.Error("open output", "path", *outPath, "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source := &pcmSource{
		r:        bufio.NewReader(in),
		rate:     *rate,
		samples:  *rate * *frameMs / 1000,
		realtime: *realtime,
	}
	sink := &writerSink{w: out, closer: out}

	// The session ends once the response to the final utterance has played
	// out: input hit EOF, a turn ran, and the state settled back to listening.
	idle := make(chan struct{})
	var idleOnce sync.Once
	var sawTurn bool
	onState := func(st client.TurnState) {
		slog.Info("state", "state", st)
		switch st {
		case client.StateThinking, client.StateSpeaking:
			sawTurn = true
		case client.StateListening:
			if sawTurn && source.exhausted() {
				idleOnce.Do(func() { close(idle) })
			}
		}
	}

	sess, err := client.NewSession(client.SessionConfig{
		Transport: client.TransportConfig{
			BaseURL:  *baseURL,
			TenantID: *tenantID,
			UserID:   *userID,
		},
		OpenSource: func(context.Context) (client.Source, error) { return source, nil },
		OpenSink:   func(context.Context) (client.Sink, error) { return sink, nil },
		Gain:       float32(*gain),
		// Input is a recording; it cannot react to the assistant, so local
		// barge-in detection would only cut responses short.
		BargeInRMS:      -1,
		OnUserText:      func(s string) { fmt.Fprintf(os.Stderr, "you: %s\n", s) },
		OnAssistantText: func(s string) { fmt.Fprintf(os.Stderr, "assistant: %s\n", s) },
		OnError:         func(s string) { fmt.Fprintf(os.Stderr, "error: %s\n", s) },
		OnStateChange:   onState,
	})
	if err != nil {
		slog.Error("create session", "err", err)
		return 1
	}
	if err := sess.Start(ctx); err != nil {
		slog.Error("start session", "err", err)
		return 1
	}

	select {
	case <-ctx.Done():
		slog.Info("interrupted")
	case <-idle:
		slog.Info("conversation finished")
	case <-sess.Done():
	}

	if err := sess.Stop(); err != nil {
		slog.Warn("session stop", "err", err)
	}
	if err := sess.Err(); err != nil {
		slog.Error("session ended with error", "err", err)
		return 1
	}
	return 0
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// ─── capture source ───────────────────────────────────────────────────────────

// pcmSource reads raw PCM16LE blocks from a reader and presents them as
// float32 capture blocks. After EOF it keeps yielding silence so the
// gateway's silence window can finalise the last utterance; the main loop
// decides when the session is over.
type pcmSource struct {
	r        *bufio.Reader
	rate     int
	samples  int
	realtime bool

	mu  sync.Mutex
	eof bool
}

func (s *pcmSource) ReadBlock(ctx context.Context) ([]float32, error) {
	if s.realtime {
		blockDur := time.Duration(s.samples) * time.Second / time.Duration(s.rate)
		select {
		case <-time.After(blockDur):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if s.exhausted() {
		return make([]float32, s.samples), nil
	}

	buf := make([]byte, s.samples*2)
	n, err := io.ReadFull(s.r, buf)
	if err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, err
		}
		s.mu.Lock()
		s.eof = true
		s.mu.Unlock()
		if n == 0 {
			return make([]float32, s.samples), nil
		}
		buf = buf[:n-n%2]
	}

	block := make([]float32, len(buf)/2)
	for i := range block {
		block[i] = float32(int16(binary.LittleEndian.Uint16(buf[i*2:]))) / 32768
	}
	return block, nil
}

func (s *pcmSource) SampleRate() int { return s.rate }

func (s *pcmSource) Close() error { return nil }

func (s *pcmSource) exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eof
}

// ─── playback sink ────────────────────────────────────────────────────────────

// writerSink appends decoded response audio to a writer. Play returns as
// soon as the bytes are written; there is no real-time pacing on output.
type writerSink struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

func (s *writerSink) Play(_ context.Context, pcm []byte, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(pcm)
	return err
}

func (s *writerSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closer.Close()
}
