// Package tts defines the Text-to-Speech provider contract (spec.md §6):
// push text via push_text/flush/end_input, receive SynthesizedAudio.
// Providers that only support chunked (non-streaming) synthesis are
// adapted to this interface by pkg/ai/tts/streamadapter.
package tts

import (
	"context"

	"github.com/duplexvox/voicecore/pkg/ai"
	"github.com/duplexvox/voicecore/pkg/rtc"
)

var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// Capabilities describes a TTS provider's supported operating parameters.
type Capabilities struct {
	Streaming            bool
	SupportedLanguages   []string
	SupportedVoices      []string
	SampleRates          []int
	SupportsSSML         bool
	SupportsSpeedControl bool
}

// Options configures a synthesis stream.
type Options struct {
	Voice    string
	Language string
	Speed    float64
}

// SynthesizedAudio is one frame of output audio from a TTS stream,
// tagged with the segment it belongs to (spec.md §3 TokenData/§4.5).
type SynthesizedAudio struct {
	RequestID string
	SegmentID string
	Frame     *rtc.AudioFrame
	IsFinal   bool // true on the last frame of a segment
}

// TTS opens streaming synthesis sessions.
type TTS interface {
	Capabilities() Capabilities

	Stream(ctx context.Context, opts Options, connOpts ai.APIConnectOptions) (Stream, error)
}

// Stream is a single TTS synthesis session. Callers push text
// incrementally; the provider segments it (on flush, or its own
// heuristics) and streams back audio per segment.
type Stream interface {
	// PushText appends text to the current segment.
	PushText(text string) error

	// Flush ends the current segment, starting a new one. Segment ids
	// are assigned by the provider and reported on SynthesizedAudio.
	Flush() error

	// EndInput signals no more text will be pushed; after the final
	// segment's audio is emitted, Chunks() closes.
	EndInput() error

	// Chunks yields SynthesizedAudio in production order.
	Chunks() <-chan SynthesizedAudio

	// Close releases the stream immediately.
	Close() error
}

// ChunkedTTS is the contract for a non-streaming ("one text in, full audio
// out") provider — the input side of StreamAdapter (spec.md §4.5).
type ChunkedTTS interface {
	Capabilities() Capabilities

	// Synthesize converts one segment of text into a sequence of audio
	// chunks, delivered on the returned channel in order.
	Synthesize(ctx context.Context, text string, opts Options, connOpts ai.APIConnectOptions) (<-chan *rtc.AudioFrame, error)
}
