// Package stt defines the Speech-to-Text provider contract (spec.md §6):
// push AudioFrames, receive SpeechEvents, restartable across retries.
package stt

import (
	"context"

	"github.com/duplexvox/voicecore/pkg/ai"
	"github.com/duplexvox/voicecore/pkg/rtc"
)

var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// EventType distinguishes the kinds of SpeechEvent spec.md §3 defines.
type EventType int

const (
	EventStartOfSpeech EventType = iota
	EventInterimTranscript
	EventFinalTranscript
	EventRecognitionUsage
	EventEndOfSpeech
)

// Alternative is one candidate transcription.
type Alternative struct {
	Text       string
	Language   string
	Confidence float64
}

// Usage reports STT-side resource consumption for one recognition session.
type Usage struct {
	AudioDuration float64 // seconds
}

// Event is one message from a recognition stream.
type Event struct {
	Type         EventType
	Alternatives []Alternative
	RequestID    string
	Usage        *Usage // set only on EventRecognitionUsage
}

// Config configures a new recognition stream.
type Config struct {
	SampleRate  int
	NumChannels int
	Language    string
}

// Capabilities describes an STT provider's supported operating parameters.
type Capabilities struct {
	Streaming          bool
	InterimResults     bool
	SupportedLanguages []string
	SampleRates        []int
}

// STT creates streaming recognition sessions.
type STT interface {
	Capabilities() Capabilities

	// Stream opens a new, restartable recognition session. request_id on
	// the Events it emits identifies that session.
	Stream(ctx context.Context, cfg Config, opts ai.APIConnectOptions) (Stream, error)
}

// Stream is a single STT recognition session.
type Stream interface {
	// Push sends one audio frame for recognition.
	Push(frame *rtc.AudioFrame) error

	// Flush forces the provider to finalize any buffered audio without
	// ending the stream.
	Flush() error

	// EndInput signals no more audio will be pushed; the provider should
	// finalize any pending recognition and then close Events().
	EndInput() error

	// Events yields SpeechEvents in production order.
	Events() <-chan Event

	// Close releases the stream immediately, discarding pending results.
	Close() error
}
