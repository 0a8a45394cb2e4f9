package voice

import (
	"sync"

	"github.com/frostbyte73/core"

	"github.com/duplexvox/voicecore/pkg/rtc"
)

// SynthesisHandle is produced by pkg/voice/synth's AgentOutput for one
// SpeechSource: an audio frame stream plus a synchronized transcript
// stream (spec.md §4.3).
type SynthesisHandle struct {
	SpeechID string

	mu          sync.Mutex
	bufCh       chan *rtc.AudioFrame
	transcript  chan string
	interrupted core.Fuse
	playout     *PlayoutHandle
}

// NewSynthesisHandle allocates a SynthesisHandle with the given audio
// buffer capacity.
func NewSynthesisHandle(speechID string, bufSize int) *SynthesisHandle {
	return &SynthesisHandle{
		SpeechID:    speechID,
		bufCh:       make(chan *rtc.AudioFrame, bufSize),
		transcript:  make(chan string, bufSize),
		interrupted: core.NewFuse(),
	}
}

// PushFrame enqueues a synthesized audio frame for playout.
func (s *SynthesisHandle) PushFrame(f *rtc.AudioFrame) { s.bufCh <- f }

// CloseFrames signals no more frames will be pushed.
func (s *SynthesisHandle) CloseFrames() { close(s.bufCh) }

// Frames yields audio frames in production order.
func (s *SynthesisHandle) Frames() <-chan *rtc.AudioFrame { return s.bufCh }

// PushTranscript enqueues a transcript segment for playout to record as
// played text.
func (s *SynthesisHandle) PushTranscript(text string) { s.transcript <- text }

// CloseTranscript signals no more transcript segments will be pushed.
func (s *SynthesisHandle) CloseTranscript() { close(s.transcript) }

// Transcript yields transcript segments in production order.
func (s *SynthesisHandle) Transcript() <-chan string { return s.transcript }

// Interrupt signals the synthesis to stop by firing interrupt_fut, per
// spec.md §4.2's "a handle's cancel propagates to its synthesis" rule. It
// does not close bufCh itself; the synthesis pipeline closes it through
// CloseFrames when it exits.
func (s *SynthesisHandle) Interrupt() { s.interrupted.Break() }

// InterruptFut is closed when Interrupt has been called.
func (s *SynthesisHandle) InterruptFut() <-chan struct{} { return s.interrupted.Watch() }

// SetPlayout attaches the PlayoutHandle consuming this synthesis's frames.
func (s *SynthesisHandle) SetPlayout(p *PlayoutHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playout = p
}

// Playout returns the attached PlayoutHandle, or nil.
func (s *SynthesisHandle) Playout() *PlayoutHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playout
}

// PlayoutHandle tracks one SynthesisHandle's consumption by the audio
// output sink: playout_started/stopped events, time played and spoken
// text so far.
type PlayoutHandle struct {
	mu           sync.Mutex
	started      bool
	done         bool
	timePlayed   float64 // seconds
	playedText   string
	targetVolume float64

	startedCh chan struct{}
	stoppedCh chan struct{}
}

// NewPlayoutHandle returns a PlayoutHandle with default (unity) volume.
func NewPlayoutHandle() *PlayoutHandle {
	return &PlayoutHandle{
		targetVolume: 1.0,
		startedCh:    make(chan struct{}),
		stoppedCh:    make(chan struct{}),
	}
}

// MarkStarted fires playout_started exactly once.
func (p *PlayoutHandle) MarkStarted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	close(p.startedCh)
}

// Started is closed when playout begins.
func (p *PlayoutHandle) Started() <-chan struct{} { return p.startedCh }

// MarkStopped fires playout_stopped exactly once.
func (p *PlayoutHandle) MarkStopped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	close(p.stoppedCh)
}

// Stopped is closed when playout ends (naturally or via interrupt).
func (p *PlayoutHandle) Stopped() <-chan struct{} { return p.stoppedCh }

// AdvanceTimePlayed accumulates played duration from one consumed frame,
// and appends any newly-played text (from a transcript update).
func (p *PlayoutHandle) AdvanceTimePlayed(seconds float64, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timePlayed += seconds
	if text != "" {
		p.playedText += text
	}
}

// TimePlayed returns the total seconds of audio played out so far.
func (p *PlayoutHandle) TimePlayed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timePlayed
}

// PlayedText returns the transcript played out so far.
func (p *PlayoutHandle) PlayedText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playedText
}

// SetTargetVolume adjusts playback gain, applied by the output sink.
func (p *PlayoutHandle) SetTargetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.targetVolume = v
}

// TargetVolume returns the current gain.
func (p *PlayoutHandle) TargetVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.targetVolume
}
