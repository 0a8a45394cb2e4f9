// Package endpoint implements the turn-taking/endpointing state machine
// (spec.md §4.1, DeferredReplyValidator): given a live stream of VAD events
// and STT transcripts, decide when to flush a pending agent reply without
// cutting the user off or leaving an awkward silence.
package endpoint

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/duplexvox/voicecore/pkg/chat"
	"github.com/duplexvox/voicecore/pkg/turn"
)

const (
	// FinalTranscriptTimeout bounds how long the validator waits for a
	// final transcript after end-of-speech before giving up and firing
	// anyway, preventing lock-up when STT drops finals.
	FinalTranscriptTimeout = 5 * time.Second

	// PunctuationReduceFactor shortens the endpointing delay when the
	// last final transcript already ends in terminal punctuation.
	PunctuationReduceFactor = 0.75

	// MinTimePlayedForCommit is the spec.md §4.2 user-message commit
	// threshold, re-exported here since it governs the same timing data.
	MinTimePlayedForCommit = 100 * time.Millisecond
)

// Options configures a Validator.
type Options struct {
	MinEndpointingDelay time.Duration
	MaxEndpointingDelay time.Duration

	// TurnDetector is optional; when present and it supports the detected
	// language, an end-of-turn probability below its threshold extends the
	// delay to MaxEndpointingDelay; a higher probability leaves it as is.
	TurnDetector turn.Detector
	Language     string
}

type state int

const (
	stateIdle state = iota
	stateSpeaking
	stateAwaitingTranscript
)

// Validator is the DeferredReplyValidator state machine. One instance
// tracks one conversational party; callers drive it via OnStartOfSpeech/
// OnEndOfSpeech/OnFinalTranscript, and it invokes the OnValidate callback
// (set via SetCallback) at most once per scheduled delay.
type Validator struct {
	opts Options

	mu                     sync.Mutex
	st                     state
	lastFinalTranscript    string
	lastStartOfSpeech      time.Time
	lastEndOfSpeech        time.Time
	lastTranscriptTime     time.Time
	timer                  *time.Timer
	cancelPending          context.CancelFunc
	callback               func()
	chatCtxFn              func() []chat.Message
}

// New returns a Validator with the given options.
func New(opts Options) *Validator {
	if opts.MinEndpointingDelay <= 0 {
		opts.MinEndpointingDelay = 500 * time.Millisecond
	}
	if opts.MaxEndpointingDelay <= 0 {
		opts.MaxEndpointingDelay = 6 * time.Second
	}
	return &Validator{opts: opts, st: stateIdle}
}

// SetCallback sets the function invoked when a reply should be validated
// (flushed into the playout queue).
func (v *Validator) SetCallback(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.callback = fn
}

// SetChatContextSource lets the validator pull recent chat history lazily,
// only when a turn-detector prediction is actually needed.
func (v *Validator) SetChatContextSource(fn func() []chat.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.chatCtxFn = fn
}

// OnStartOfSpeech unconditionally cancels any pending validation and moves
// to the Speaking state.
func (v *Validator) OnStartOfSpeech() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancelLocked()
	v.st = stateSpeaking
	v.lastStartOfSpeech = time.Now()
}

// OnEndOfSpeech moves to AwaitingTranscript and schedules a validation.
func (v *Validator) OnEndOfSpeech() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.st = stateAwaitingTranscript
	v.lastEndOfSpeech = time.Now()
	v.scheduleLocked()
}

// OnFinalTranscript records a final transcript and recomputes the
// scheduled delay.
func (v *Validator) OnFinalTranscript(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastFinalTranscript = text
	v.lastTranscriptTime = time.Now()
	if v.st == stateAwaitingTranscript {
		v.scheduleLocked()
	}
}

func (v *Validator) cancelLocked() {
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	if v.cancelPending != nil {
		v.cancelPending()
		v.cancelPending = nil
	}
}

// delayLocked computes the delay per spec.md §4.1's formula. Must be
// called with v.mu held.
func (v *Validator) delayLocked() time.Duration {
	if v.st == stateSpeaking {
		return -1 // NONE: do nothing while the user is speaking
	}
	if v.lastFinalTranscript == "" {
		return FinalTranscriptTimeout
	}

	delay := v.opts.MinEndpointingDelay
	if endsWithTerminalPunctuation(v.lastFinalTranscript) {
		delay = time.Duration(float64(delay) * PunctuationReduceFactor)
	}

	// The "true end" of user speech: if the transcript arrived between
	// start- and end-of-speech, it's the earlier of the two end signals.
	trueEnd := v.lastEndOfSpeech
	if v.lastTranscriptTime.After(v.lastStartOfSpeech) && v.lastTranscriptTime.Before(v.lastEndOfSpeech) {
		trueEnd = earlier(v.lastEndOfSpeech, v.lastTranscriptTime)
	}

	elapsed := time.Since(trueEnd)
	delay -= elapsed
	if delay < 0 {
		delay = 0
	}
	return delay
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func endsWithTerminalPunctuation(s string) bool {
	s = strings.TrimRight(s, " \t\n")
	if s == "" {
		return false
	}
	return strings.ContainsRune(".!?", rune(s[len(s)-1]))
}

// scheduleLocked replaces any pending validation task with a new one,
// optionally consulting the turn detector for a probability-based delay
// override. Must be called with v.mu held.
func (v *Validator) scheduleLocked() {
	v.cancelLocked()

	delay := v.delayLocked()
	if delay < 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	v.cancelPending = cancel

	if v.opts.TurnDetector != nil && v.lastFinalTranscript != "" && v.opts.TurnDetector.SupportsLanguage(v.opts.Language) {
		go v.scheduleWithTurnDetector(ctx, delay)
		return
	}

	v.timer = time.AfterFunc(delay, v.fire)
}

// scheduleWithTurnDetector runs the (potentially slow) EOU model off the
// lock, then arms the real timer with whatever delay it implies.
func (v *Validator) scheduleWithTurnDetector(ctx context.Context, fallbackDelay time.Duration) {
	v.mu.Lock()
	language := v.opts.Language
	var recent []chat.Message
	if v.chatCtxFn != nil {
		recent = v.chatCtxFn()
	}
	v.mu.Unlock()

	start := time.Now()
	probability, err := v.opts.TurnDetector.PredictEndOfTurn(ctx, turn.ChatContext{Messages: recent, Language: language})
	predictionTime := time.Since(start)

	v.mu.Lock()
	defer v.mu.Unlock()
	if ctx.Err() != nil {
		return // superseded by a newer event
	}

	delay := fallbackDelay
	if err == nil {
		threshold, thErr := v.opts.TurnDetector.UnlikelyThreshold(language)
		if thErr == nil && probability < threshold {
			delay = v.opts.MaxEndpointingDelay
		}
	}
	delay -= predictionTime
	if delay < 0 {
		delay = 0
	}

	v.timer = time.AfterFunc(delay, v.fire)
}

// fire resets state and invokes the validation callback.
func (v *Validator) fire() {
	v.mu.Lock()
	v.st = stateIdle
	v.lastFinalTranscript = ""
	cb := v.callback
	v.mu.Unlock()

	if cb != nil {
		cb()
	}
}
