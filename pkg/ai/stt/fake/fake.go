// Package fake provides a deterministic STT implementation for tests: it
// emits one fixed final transcript shortly after the first frame is pushed.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/duplexvox/voicecore/pkg/ai"
	"github.com/duplexvox/voicecore/pkg/ai/stt"
	"github.com/duplexvox/voicecore/pkg/rtc"
)

// FakeSTT always reports transcript as the final transcription of whatever
// audio it receives.
type FakeSTT struct {
	transcript string
}

// NewFakeSTT returns a FakeSTT reporting the given transcript.
func NewFakeSTT(transcript string) *FakeSTT {
	return &FakeSTT{transcript: transcript}
}

func (f *FakeSTT) Capabilities() stt.Capabilities {
	return stt.Capabilities{Streaming: true, SupportedLanguages: []string{"en-US"}, SampleRates: []int{48000}}
}

func (f *FakeSTT) Stream(ctx context.Context, cfg stt.Config, opts ai.APIConnectOptions) (stt.Stream, error) {
	s := &stream{transcript: f.transcript, events: make(chan stt.Event, 4), pushed: make(chan struct{}, 1), stop: make(chan struct{})}
	go s.run(ctx)
	return s, nil
}

type stream struct {
	transcript string
	events     chan stt.Event
	pushed     chan struct{}
	stop       chan struct{}
	stopOnce   sync.Once
}

func (s *stream) Push(frame *rtc.AudioFrame) error {
	select {
	case s.pushed <- struct{}{}:
	default:
	}
	return nil
}

func (s *stream) Flush() error { return nil }

func (s *stream) EndInput() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *stream) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *stream) Events() <-chan stt.Event { return s.events }

func (s *stream) run(ctx context.Context) {
	defer close(s.events)

	select {
	case <-s.pushed:
	case <-ctx.Done():
		return
	case <-s.stop:
		return
	}

	select {
	case <-time.After(150 * time.Millisecond):
	case <-ctx.Done():
		return
	case <-s.stop:
		return
	}

	select {
	case s.events <- stt.Event{Type: stt.EventFinalTranscript, Alternatives: []stt.Alternative{{Text: s.transcript, Confidence: 1}}}:
	case <-ctx.Done():
		return
	case <-s.stop:
		return
	}

	select {
	case <-ctx.Done():
	case <-s.stop:
	}
}
