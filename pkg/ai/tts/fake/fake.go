// Package fake provides a deterministic TTS implementation for tests: each
// Flush turns buffered text into one silent 10ms audio frame.
package fake

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/duplexvox/voicecore/pkg/ai"
	"github.com/duplexvox/voicecore/pkg/ai/tts"
	"github.com/duplexvox/voicecore/pkg/rtc"
)

// FakeTTS synthesizes silence, one frame per flushed segment.
type FakeTTS struct{}

// NewFakeTTS returns a FakeTTS.
func NewFakeTTS() *FakeTTS { return &FakeTTS{} }

func (f *FakeTTS) Capabilities() tts.Capabilities {
	return tts.Capabilities{Streaming: true, SampleRates: []int{48000}}
}

func (f *FakeTTS) Stream(ctx context.Context, opts tts.Options, connOpts ai.APIConnectOptions) (tts.Stream, error) {
	return &stream{out: make(chan tts.SynthesizedAudio, 8), segmentID: uuid.NewString(), done: make(chan struct{})}, nil
}

type stream struct {
	mu        sync.Mutex
	pending   string
	segmentID string
	out       chan tts.SynthesizedAudio
	done      chan struct{}
	closeOnce sync.Once
}

func (s *stream) PushText(text string) error {
	s.mu.Lock()
	s.pending += text
	s.mu.Unlock()
	return nil
}

func (s *stream) Flush() error {
	s.mu.Lock()
	text := s.pending
	segID := s.segmentID
	s.pending = ""
	s.segmentID = uuid.NewString()
	s.mu.Unlock()

	if text == "" {
		return nil
	}
	frame := rtc.FrameFromSamples(make([]int16, 480), 48000, 1, 0)
	select {
	case s.out <- tts.SynthesizedAudio{SegmentID: segID, Frame: frame, IsFinal: true}:
	case <-s.done:
	}
	return nil
}

func (s *stream) EndInput() error {
	_ = s.Flush()
	s.closeOnce.Do(func() {
		close(s.done)
		close(s.out)
	})
	return nil
}

func (s *stream) Chunks() <-chan tts.SynthesizedAudio { return s.out }

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		close(s.out)
	})
	return nil
}
