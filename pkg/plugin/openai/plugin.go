package openai

import (
	"github.com/duplexvox/voicecore/pkg/ai/tts/streamadapter"
	"github.com/duplexvox/voicecore/pkg/plugin"
)

// newOpenAITTSStreaming wraps the chunked OpenAITTS provider as a streaming
// tts.TTS via streamadapter (spec.md §4.5), the shape the plugin registry
// and pkg/agent.Config.TTS both expect.
func newOpenAITTSStreaming(cfg map[string]any) (any, error) {
	chunked, err := newOpenAITTS(cfg)
	if err != nil {
		return nil, err
	}
	return streamadapter.New(chunked.(*OpenAITTS)), nil
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        "stt",
		Name:        "openai",
		Factory:     newOpenAISTT,
		Description: "OpenAI Whisper speech-to-text service",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key":  "OpenAI API key (or set OPENAI_API_KEY env var)",
			"model":    "whisper-1",
			"language": "auto-detect (leave empty) or specify language code",
		},
	})
	
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        "llm",
		Name:        "openai",
		Factory:     newOpenAILLM,
		Description: "OpenAI GPT chat completion service",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key": "OpenAI API key (or set OPENAI_API_KEY env var)",
			"model":   "gpt-3.5-turbo",
		},
	})
	
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        "tts",
		Name:        "openai",
		Factory:     newOpenAITTSStreaming,
		Description: "OpenAI text-to-speech service",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key": "OpenAI API key (or set OPENAI_API_KEY env var)",
			"model":   "tts-1",
			"voice":   "alloy",
		},
	})
}