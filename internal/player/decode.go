package player

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/mewkiz/flac"
)

// chunkFrames is the number of samples per channel in one decoded chunk.
const chunkFrames = 4096

// chunkQueueDepth bounds the decode-ahead buffer. 32 chunks of 4096 frames
// cover more than a second at 96 kHz.
const chunkQueueDepth = 32

// Format describes a PCM stream the way the audio device needs it.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// chunk is a block of interleaved PCM samples at the stream's native rate
// and depth.
type chunk struct {
	samples []int32
	// frames is the number of samples per channel.
	frames int
}

// decodeSession streams one track's PCM from its own goroutine into a
// bounded channel. The producer blocks when the channel is full; the player
// blocks when it is empty. When the track ends or decoding fails, the
// channel closes and the goroutine exits.
type decodeSession struct {
	format Format
	// totalFrames is zero when the stream does not declare its length.
	totalFrames   uint64
	chunks        chan chunk
	decodedFrames atomic.Uint64

	cancel   chan struct{}
	stopOnce sync.Once
	// err is set by the producer before chunks closes; read it only after
	// the channel is closed.
	err error
}

// startDecode opens the FLAC file at path and starts decoding into the
// session's chunk queue.
func startDecode(path string) (*decodeSession, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	info := stream.Info
	s := &decodeSession{
		format: Format{
			SampleRate:    int(info.SampleRate),
			Channels:      int(info.NChannels),
			BitsPerSample: int(info.BitsPerSample),
		},
		totalFrames: info.NSamples,
		chunks:      make(chan chunk, chunkQueueDepth),
		cancel:      make(chan struct{}),
	}
	go s.run(f, stream)
	return s, nil
}

func (s *decodeSession) run(f *os.File, stream *flac.Stream) {
	defer close(s.chunks)
	defer f.Close()

	ch := s.format.Channels
	target := chunkFrames * ch
	buf := make([]int32, 0, 2*target)

	emit := func(samples []int32) bool {
		select {
		case s.chunks <- chunk{samples: samples, frames: len(samples) / ch}:
			s.decodedFrames.Add(uint64(len(samples) / ch))
			return true
		case <-s.cancel:
			return false
		}
	}

	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.err = err
			return
		}
		n := len(frame.Subframes[0].Samples)
		for i := range n {
			for c := range ch {
				buf = append(buf, frame.Subframes[c].Samples[i])
			}
		}
		for len(buf) >= target {
			out := make([]int32, target)
			copy(out, buf[:target])
			buf = append(buf[:0], buf[target:]...)
			if !emit(out) {
				return
			}
		}
	}
	if len(buf) > 0 {
		out := make([]int32, len(buf))
		copy(out, buf)
		emit(out)
	}
}

// stop tells the producer to quit. Safe to call more than once and while
// the producer is blocked on a full queue.
func (s *decodeSession) stop() {
	s.stopOnce.Do(func() { close(s.cancel) })
}

// Err reports why decoding ended early. Only valid once chunks has closed.
func (s *decodeSession) Err() error {
	return s.err
}
