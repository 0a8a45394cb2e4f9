// Package fake provides a deterministic LLM implementation for tests: it
// round-robins a fixed list of canned replies, never issuing tool calls.
package fake

import (
	"context"
	"io"
	"sync"

	"github.com/duplexvox/voicecore/pkg/ai"
	"github.com/duplexvox/voicecore/pkg/ai/llm"
	"github.com/duplexvox/voicecore/pkg/chat"
)

// FakeLLM returns canned text responses in order, looping once exhausted.
type FakeLLM struct {
	mu        sync.Mutex
	responses []string
	idx       int
}

// NewFakeLLM returns a FakeLLM cycling through responses, or a single
// generic greeting if none are given.
func NewFakeLLM(responses ...string) *FakeLLM {
	if len(responses) == 0 {
		responses = []string{"Hello! How can I help you today?"}
	}
	return &FakeLLM{responses: responses}
}

func (f *FakeLLM) Capabilities() llm.Capabilities { return llm.Capabilities{} }

func (f *FakeLLM) Chat(ctx context.Context, messages []chat.Message, opts llm.ChatOptions, connOpts ai.APIConnectOptions) (llm.Stream, error) {
	f.mu.Lock()
	text := f.responses[f.idx%len(f.responses)]
	f.idx++
	f.mu.Unlock()
	return &stream{text: text}, nil
}

type stream struct {
	text string
	sent bool
}

func (s *stream) Recv() (llm.ChatChunk, error) {
	if s.sent {
		return llm.ChatChunk{}, io.EOF
	}
	s.sent = true
	return llm.ChatChunk{Delta: llm.Delta{Role: chat.RoleAssistant, Content: s.text}}, nil
}

func (s *stream) Close() error { return nil }
