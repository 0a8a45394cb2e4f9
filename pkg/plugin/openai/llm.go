package openai

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/duplexvox/voicecore/pkg/ai"
	"github.com/duplexvox/voicecore/pkg/ai/llm"
	"github.com/duplexvox/voicecore/pkg/chat"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAILLM implements llm.LLM over OpenAI's streaming chat completion API.
type OpenAILLM struct {
	client *openai.Client
	model  string
}

// newOpenAILLM creates a new OpenAI LLM instance.
func newOpenAILLM(config map[string]any) (any, error) {
	var apiKey string
	if key, ok := config["api_key"].(string); ok {
		apiKey = key
	} else {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (set OPENAI_API_KEY environment variable or provide api_key in config)")
	}

	model, ok := config["model"].(string)
	if !ok || model == "" {
		model = "gpt-3.5-turbo"
	}

	return &OpenAILLM{client: openai.NewClient(apiKey), model: model}, nil
}

func (o *OpenAILLM) Capabilities() llm.Capabilities {
	return llm.Capabilities{SupportsFunctions: true, SupportsParallelCall: true}
}

// Chat opens a streaming chat completion, retrying per connOpts on
// recoverable failures (spec.md §6 provider retry contract).
func (o *OpenAILLM) Chat(ctx context.Context, messages []chat.Message, opts llm.ChatOptions, connOpts ai.APIConnectOptions) (llm.Stream, error) {
	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
	}
	if opts.Temperature != nil {
		req.Temperature = float32(*opts.Temperature)
	}
	if len(opts.Functions) > 0 {
		req.Tools = toOpenAITools(opts.Functions)
	}

	var stream *openai.ChatCompletionStream
	err := ai.Retry(ctx, "openai-llm", connOpts, func(callCtx context.Context) error {
		s, err := o.client.CreateChatCompletionStream(callCtx, req)
		if err != nil {
			return ai.NewRecoverableError(err, "openai chat completion stream")
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &llmStream{stream: stream}, nil
}

func toOpenAIMessages(messages []chat.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Text()}
		if m.ToolCallID != "" {
			msg.ToolCallID = m.ToolCallID
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(defs []llm.FunctionDefinition) []openai.Tool {
	out := make([]openai.Tool, len(defs))
	for i, fn := range defs {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters,
			},
		}
	}
	return out
}

// llmStream adapts openai.ChatCompletionStream to llm.Stream, accumulating
// streamed tool-call argument fragments by index until a chunk's finish
// reason closes them out.
type llmStream struct {
	stream *openai.ChatCompletionStream
	calls  map[int]*chat.ToolCall
}

func (s *llmStream) Recv() (llm.ChatChunk, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		if err == io.EOF {
			return llm.ChatChunk{}, io.EOF
		}
		return llm.ChatChunk{}, ai.NewRecoverableError(err, "openai chat completion stream recv")
	}
	if len(resp.Choices) == 0 {
		return llm.ChatChunk{RequestID: resp.ID}, nil
	}

	choice := resp.Choices[0]
	delta := llm.Delta{Role: chat.RoleAssistant, Content: choice.Delta.Content}

	for _, tc := range choice.Delta.ToolCalls {
		idx := 0
		if tc.Index != nil {
			idx = *tc.Index
		}
		if s.calls == nil {
			s.calls = make(map[int]*chat.ToolCall)
		}
		call, ok := s.calls[idx]
		if !ok {
			call = &chat.ToolCall{ID: tc.ID, Name: tc.Function.Name}
			s.calls[idx] = call
		}
		call.Arguments += tc.Function.Arguments
	}

	if choice.FinishReason == openai.FinishReasonToolCalls || choice.FinishReason == openai.FinishReasonFunctionCall {
		for _, idx := range sortedKeys(s.calls) {
			delta.ToolCalls = append(delta.ToolCalls, *s.calls[idx])
		}
	}

	var usage *llm.Usage
	if resp.Usage != nil {
		usage = &llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	return llm.ChatChunk{RequestID: resp.ID, Delta: delta, Usage: usage}, nil
}

func (s *llmStream) Close() error {
	s.stream.Close()
	return nil
}

func sortedKeys(m map[int]*chat.ToolCall) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
