// Package voice holds the SpeechHandle/SynthesisHandle/PlayoutHandle
// ownership hierarchy shared by the synthesis pipeline (pkg/voice/synth),
// the playout arbiter (pkg/voice/playout) and the orchestrator
// (pkg/agent) — spec.md §3, §4.2, §4.3.
package voice

import (
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"github.com/google/uuid"

	"github.com/duplexvox/voicecore/pkg/ai/llm"
	"github.com/duplexvox/voicecore/pkg/chat"
)

// SourceKind tags the union held by a SpeechSource.
type SourceKind int

const (
	SourceText SourceKind = iota
	SourceLLMStream
	SourceSequence
)

// SpeechSource is the spec.md §4.3 tagged union: a literal string, an
// LLMStream to adapt into text, or a lazy sequence of text segments. Exactly
// one of Text/LLM/Sequence is set, selected by Kind.
type SpeechSource struct {
	Kind     SourceKind
	Text     string
	LLM      llm.Stream
	Sequence <-chan string
}

// NewTextSource wraps a literal string as a SpeechSource.
func NewTextSource(text string) SpeechSource {
	return SpeechSource{Kind: SourceText, Text: text}
}

// NewLLMSource wraps a streaming chat completion as a SpeechSource.
func NewLLMSource(stream llm.Stream) SpeechSource {
	return SpeechSource{Kind: SourceLLMStream, LLM: stream}
}

// NewSequenceSource wraps a lazy text sequence as a SpeechSource.
func NewSequenceSource(seq <-chan string) SpeechSource {
	return SpeechSource{Kind: SourceSequence, Sequence: seq}
}

// SpeechHandle is one queued or playing agent utterance. It owns an
// optional SynthesisHandle (created once synthesis starts) and any nested
// handles attached before its playout completes (spec.md §4.2 nested
// speech driver).
type SpeechHandle struct {
	ID     string
	Source SpeechSource

	// AllowInterruptions reports whether user speech may cut this
	// utterance off mid-playout.
	AllowInterruptions bool
	// AddToChatCtx controls whether playout appends an assistant message.
	AddToChatCtx bool
	// IsUsingTools marks replies produced from a tool-call round, which
	// bypasses the MinTimePlayedForCommit gate on user-message commit.
	IsUsingTools bool

	// UserQuestion is the transcript this reply answers, committed to the
	// chat context under the rules in spec.md §4.2.
	UserQuestion string

	// ExtraToolsMessages are appended to the chat context ahead of the
	// spoken reply when this handle's reply included tool calls.
	ExtraToolsMessages []chat.Message
	// FncTextMessageID, if non-empty, names the tool_calls-carrier message
	// this handle's spoken text should replace or clear on commit.
	FncTextMessageID string

	mu              sync.Mutex
	synthesis       *SynthesisHandle
	synthesisReady  core.Fuse
	nested          []*SpeechHandle
	nestedDone      core.Fuse
	interrupted     bool
	interruptFut    core.Fuse
	userCommitted   bool
	spokenText      string
	playedNonBlank  bool
	timePlayed      time.Duration
}

// NewSpeechHandle allocates a SpeechHandle for source.
func NewSpeechHandle(source SpeechSource) *SpeechHandle {
	return &SpeechHandle{
		ID:             uuid.NewString(),
		Source:         source,
		AddToChatCtx:   true,
		synthesisReady: core.NewFuse(),
		nestedDone:     core.NewFuse(),
		interruptFut:   core.NewFuse(),
	}
}

// SetSynthesis attaches the SynthesisHandle once synthesis has started and
// signals any waiter in WaitForInitialization.
func (h *SpeechHandle) SetSynthesis(s *SynthesisHandle) {
	h.mu.Lock()
	h.synthesis = s
	h.mu.Unlock()
	h.synthesisReady.Break()
}

// Synthesis returns the attached SynthesisHandle, or nil if not yet set.
func (h *SpeechHandle) Synthesis() *SynthesisHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.synthesis
}

// WaitForInitialization blocks until SetSynthesis has been called.
func (h *SpeechHandle) WaitForInitialization() {
	<-h.synthesisReady.Watch()
}

// AddNested attaches a nested speech handle (a tool-call reply that must be
// spoken before this one is considered complete). Safe to call any time
// before NestedSpeechDone.
func (h *SpeechHandle) AddNested(n *SpeechHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nested = append(h.nested, n)
}

// PopNested removes and returns the head of the nested FIFO, or nil if
// empty.
func (h *SpeechHandle) PopNested() *SpeechHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.nested) == 0 {
		return nil
	}
	n := h.nested[0]
	h.nested = h.nested[1:]
	return n
}

// MarkNestedSpeechDone signals that no more nested handles will be added.
func (h *SpeechHandle) MarkNestedSpeechDone() { h.nestedDone.Break() }

// NestedSpeechDone is closed once MarkNestedSpeechDone is called.
func (h *SpeechHandle) NestedSpeechDone() <-chan struct{} { return h.nestedDone.Watch() }

// Interrupted reports whether this handle was cut off by barge-in.
func (h *SpeechHandle) Interrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}

// Interrupt marks the handle (and its attached synthesis, if any) as
// interrupted, propagating recursively into nested handles.
func (h *SpeechHandle) Interrupt() {
	h.mu.Lock()
	h.interrupted = true
	s := h.synthesis
	nested := append([]*SpeechHandle(nil), h.nested...)
	h.mu.Unlock()

	h.interruptFut.Break()
	if s != nil {
		s.Interrupt()
	}
	for _, n := range nested {
		n.Interrupt()
	}
}

// InterruptFut is closed when Interrupt has been called.
func (h *SpeechHandle) InterruptFut() <-chan struct{} { return h.interruptFut.Watch() }

// MarkUserCommitted records that the user question has been committed to
// the chat context, so it is never committed twice.
func (h *SpeechHandle) MarkUserCommitted() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.userCommitted = true
}

// UserCommitted reports whether MarkUserCommitted has been called.
func (h *SpeechHandle) UserCommitted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.userCommitted
}

// RecordPlayback accumulates played duration and whether any non-whitespace
// text has been spoken so far, feeding the user-message commit rule.
func (h *SpeechHandle) RecordPlayback(d time.Duration, spokenNonBlank bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timePlayed += d
	if spokenNonBlank {
		h.playedNonBlank = true
	}
}

// PlaybackSnapshot returns the accumulated played time and non-blank flag.
func (h *SpeechHandle) PlaybackSnapshot() (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timePlayed, h.playedNonBlank
}

// SetSpokenText records the final spoken text for the assistant-message
// commit rule.
func (h *SpeechHandle) SetSpokenText(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.spokenText = text
}

// SpokenText returns the text recorded by SetSpokenText.
func (h *SpeechHandle) SpokenText() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.spokenText
}
