// Package vad defines the Voice Activity Detection provider contract
// (spec.md §6): a lazy, cancellable event stream over pushed AudioFrames.
package vad

import (
	"context"
	"time"

	"github.com/duplexvox/voicecore/pkg/ai"
	"github.com/duplexvox/voicecore/pkg/rtc"
)

// VAD-specific error aliases, kept for callers that want to classify
// errors without importing pkg/ai directly.
var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// EventType is the kind of VAD event (spec.md §6: start_of_speech,
// inference_done, end_of_speech).
type EventType int

const (
	EventInferenceDone EventType = iota
	EventStartOfSpeech
	EventEndOfSpeech
)

// Event is a single VAD inference result, pushed on every processed frame
// (EventInferenceDone) or speech boundary crossing.
type Event struct {
	Type EventType

	Probability             float64
	SpeechDuration          time.Duration
	SilenceDuration         time.Duration
	RawAccumulatedSpeech    time.Duration
	RawAccumulatedSilence   time.Duration
	InferenceDuration       time.Duration
	Speaking                bool
	Frames                  []*rtc.AudioFrame
}

// Capabilities describes a VAD provider's supported operating parameters.
type Capabilities struct {
	MinSpeechDuration  time.Duration
	MinSilenceDuration time.Duration
	UpdateInterval     time.Duration
	SampleRates        []int
}

// VAD is the main interface for voice activity detection providers.
type VAD interface {
	Capabilities() Capabilities

	// Stream opens a new detection session. Frames must be pushed via
	// Stream.Push in 10ms increments; events come out of Stream.Events.
	Stream(ctx context.Context) (Stream, error)
}

// Stream is a single VAD session bound to one audio source.
type Stream interface {
	// Push feeds one 10ms frame into the detector. Non-blocking: frames
	// are queued internally and Events() is fed asynchronously.
	Push(frame *rtc.AudioFrame) error

	// Events yields Event values in arrival order. Closed when the
	// stream is closed or its context is done.
	Events() <-chan Event

	// Close releases the stream's resources.
	Close() error
}
