// Package fake provides a deterministic VAD implementation for tests:
// silence is an all-zero frame, anything else is speech.
package fake

import (
	"context"
	"sync"

	"github.com/duplexvox/voicecore/pkg/ai/vad"
	"github.com/duplexvox/voicecore/pkg/rtc"
)

// FakeVAD treats any frame containing a non-zero byte as speech.
type FakeVAD struct {
	threshold float64
}

// NewFakeVAD returns a FakeVAD; threshold is stored but not used or
// reported, since speech/silence classification is based purely on frame
// content.
func NewFakeVAD(threshold float64) *FakeVAD {
	return &FakeVAD{threshold: threshold}
}

func (f *FakeVAD) Capabilities() vad.Capabilities {
	return vad.Capabilities{SampleRates: []int{48000}}
}

func (f *FakeVAD) Stream(ctx context.Context) (vad.Stream, error) {
	return newStream(), nil
}

type stream struct {
	events    chan vad.Event
	mu        sync.Mutex
	speaking  bool
	closed    chan struct{}
	closeOnce sync.Once
}

func newStream() *stream {
	return &stream{events: make(chan vad.Event, 16), closed: make(chan struct{})}
}

func (s *stream) Push(frame *rtc.AudioFrame) error {
	speech := hasSignal(frame)

	s.mu.Lock()
	was := s.speaking
	s.speaking = speech
	s.mu.Unlock()

	var ev *vad.Event
	switch {
	case speech && !was:
		ev = &vad.Event{Type: vad.EventStartOfSpeech, Speaking: true}
	case !speech && was:
		ev = &vad.Event{Type: vad.EventEndOfSpeech, Speaking: false}
	}
	if ev == nil {
		return nil
	}

	select {
	case s.events <- *ev:
	case <-s.closed:
	}
	return nil
}

func (s *stream) Events() <-chan vad.Event { return s.events }

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		close(s.events)
	})
	return nil
}

func hasSignal(frame *rtc.AudioFrame) bool {
	if frame == nil {
		return false
	}
	for _, b := range frame.Data {
		if b != 0 {
			return true
		}
	}
	return false
}
