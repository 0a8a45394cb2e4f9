// Package llm defines the Large Language Model provider contract (spec.md
// §6): LLM.chat returns a cancellable LLMStream of ChatChunks.
package llm

import (
	"context"

	"github.com/duplexvox/voicecore/pkg/ai"
	"github.com/duplexvox/voicecore/pkg/chat"
)

var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// FunctionDefinition describes one callable tool exposed to the LLM.
type FunctionDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema
}

// ChatOptions configures a single chat() call.
type ChatOptions struct {
	Functions           []FunctionDefinition
	ToolChoice          any // "auto" | "none" | {name}
	Temperature         *float64
	N                   int
	ParallelToolCalls   *bool
}

// Delta is the incremental content of one ChatChunk's single choice.
type Delta struct {
	Role      chat.Role
	Content   string
	ToolCalls []chat.ToolCall
}

// Usage reports token accounting for one completed stream. At most one
// Usage-bearing chunk is emitted per stream, on or before termination.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatChunk is one message from an LLMStream.
type ChatChunk struct {
	RequestID string
	Delta     Delta
	Usage     *Usage
}

// Capabilities describes an LLM provider's supported operating parameters.
type Capabilities struct {
	SupportsFunctions    bool
	SupportsParallelCall bool
	SupportsChoiceN      bool
}

// LLM is the main interface for large language model providers.
type LLM interface {
	Capabilities() Capabilities

	// Chat starts a cancellable streaming chat completion over ctx.
	Chat(ctx context.Context, messages []chat.Message, opts ChatOptions, connOpts ai.APIConnectOptions) (Stream, error)
}

// Stream is a cancellable sequence of ChatChunks.
type Stream interface {
	// Recv blocks for the next chunk. Returns io.EOF (wrapped) when the
	// stream completes normally.
	Recv() (ChatChunk, error)

	// Close cancels the stream and releases its resources.
	Close() error
}
