// Package playout implements AgentPlayout, the consumer side of a
// voice.SynthesisHandle: it drains audio frames to an output sink, fires
// playout_started/playout_stopped on the attached voice.PlayoutHandle, and
// records transcript segments as played text (spec.md §4.3). Segments are
// recorded as soon as they arrive on the transcript stream; they are not
// paced to the audio frames actually played.
package playout

import (
	"context"

	"github.com/duplexvox/voicecore/pkg/rtc"
	"github.com/duplexvox/voicecore/pkg/voice"
)

// Sink is the audio output a session plays frames to, e.g. an RTC track
// writer or a local speaker device.
type Sink interface {
	WriteFrame(ctx context.Context, frame *rtc.AudioFrame, volume float64) error
}

// AgentPlayout drains one SynthesisHandle at a time to sink.
type AgentPlayout struct {
	sink Sink
}

// New returns an AgentPlayout writing to sink.
func New(sink Sink) *AgentPlayout {
	return &AgentPlayout{sink: sink}
}

// Attach creates and registers a fresh voice.PlayoutHandle for synthesis,
// returning it immediately so a caller can observe Started/Stopped/
// TimePlayed/PlayedText while Play runs — e.g. to poll the commit rule in
// spec.md §4.2 every 200ms without waiting for playout to finish.
func (p *AgentPlayout) Attach(synthesis *voice.SynthesisHandle) *voice.PlayoutHandle {
	handle := voice.NewPlayoutHandle()
	synthesis.SetPlayout(handle)
	return handle
}

// Play drains synthesis's frames and transcript to the sink, against the
// handle Attach already registered, until both streams are exhausted, the
// synthesis is interrupted, a sink write fails, or ctx is cancelled. Play
// blocks until playout is done; handle is live-readable by another
// goroutine throughout.
func (p *AgentPlayout) Play(ctx context.Context, synthesis *voice.SynthesisHandle, handle *voice.PlayoutHandle) *voice.PlayoutHandle {
	frames := synthesis.Frames()
	transcript := synthesis.Transcript()

	for frames != nil || transcript != nil {
		select {
		case <-ctx.Done():
			handle.MarkStopped()
			return handle

		case <-synthesis.InterruptFut():
			handle.MarkStopped()
			return handle

		case frame, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			handle.MarkStarted()
			if err := p.sink.WriteFrame(ctx, frame, handle.TargetVolume()); err != nil {
				handle.MarkStopped()
				return handle
			}
			handle.AdvanceTimePlayed(frameSeconds(frame), "")

		case text, ok := <-transcript:
			if !ok {
				transcript = nil
				continue
			}
			handle.AdvanceTimePlayed(0, text)
		}
	}

	handle.MarkStopped()
	return handle
}

// frameSeconds returns the playback duration of one audio frame.
func frameSeconds(f *rtc.AudioFrame) float64 {
	if f == nil {
		return 0
	}
	return f.Duration().Seconds()
}
