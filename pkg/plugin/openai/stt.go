// Package openai provides OpenAI-based AI providers (STT, TTS, LLM).
// This plugin integrates with OpenAI's APIs including Whisper for speech-to-text.
package openai

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/duplexvox/voicecore/pkg/ai"
	"github.com/duplexvox/voicecore/pkg/ai/stt"
	"github.com/duplexvox/voicecore/pkg/rtc"
	openai "github.com/sashabaranov/go-openai"
)

// WhisperSTT implements stt.STT using OpenAI's Whisper transcription API.
// Whisper has no streaming endpoint, so each stream batches pushed audio
// on a timer and finalizes on EndInput — the same buffering shape
// pkg/ai/tts/streamadapter uses on the synthesis side, applied here to
// recognition instead.
type WhisperSTT struct {
	client   *openai.Client
	model    string
	language string
}

// Config holds configuration for OpenAI STT.
type Config struct {
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`    // Default: whisper-1
	Language string `json:"language"` // Default: auto-detect (empty)
}

// NewWhisperSTT creates a new OpenAI Whisper STT provider.
func NewWhisperSTT(cfg Config) (*WhisperSTT, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}

	return &WhisperSTT{
		client:   openai.NewClient(cfg.APIKey),
		model:    model,
		language: cfg.Language,
	}, nil
}

// newOpenAISTT is the plugin registry factory for WhisperSTT.
func newOpenAISTT(cfg map[string]any) (any, error) {
	config := Config{}
	if apiKey, ok := cfg["api_key"].(string); ok {
		config.APIKey = apiKey
	} else {
		config.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (set OPENAI_API_KEY environment variable or provide api_key in config)")
	}
	if model, ok := cfg["model"].(string); ok {
		config.Model = model
	}
	if language, ok := cfg["language"].(string); ok {
		config.Language = language
	}
	return NewWhisperSTT(config)
}

func (w *WhisperSTT) Capabilities() stt.Capabilities {
	return stt.Capabilities{
		Streaming:      true, // pseudo-streaming via batching
		InterimResults: false,
		SupportedLanguages: []string{
			"en", "zh", "de", "es", "ru", "ko", "fr", "ja", "pt", "tr", "pl", "ca", "nl",
			"ar", "sv", "it", "id", "hi", "fi", "vi", "he", "uk", "el", "ms", "cs", "ro",
		},
		SampleRates: []int{16000, 22050, 44100, 48000},
	}
}

// Stream opens a batching recognition session over ctx.
func (w *WhisperSTT) Stream(ctx context.Context, cfg stt.Config, opts ai.APIConnectOptions) (stt.Stream, error) {
	s := &whisperStream{
		whisper:  w,
		cfg:      cfg,
		connOpts: opts,
		events:   make(chan stt.Event, 10),
		done:     make(chan struct{}),
	}
	go s.run(ctx)
	return s, nil
}

// whisperStream batches pushed frames and transcribes on a fixed interval
// and on EndInput, emitting one EventFinalTranscript per non-empty batch.
type whisperStream struct {
	whisper  *WhisperSTT
	cfg      stt.Config
	connOpts ai.APIConnectOptions

	mu     sync.Mutex
	buffer []*rtc.AudioFrame
	ending bool

	events    chan stt.Event
	done      chan struct{}
	closeOnce sync.Once
}

func (s *whisperStream) Push(frame *rtc.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ending {
		return fmt.Errorf("stt: stream is ending")
	}
	s.buffer = append(s.buffer, frame)
	return nil
}

func (s *whisperStream) Flush() error { return nil }

func (s *whisperStream) EndInput() error {
	s.mu.Lock()
	s.ending = true
	s.mu.Unlock()
	return nil
}

func (s *whisperStream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *whisperStream) Events() <-chan stt.Event { return s.events }

func (s *whisperStream) run(ctx context.Context) {
	defer close(s.events)

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.transcribeBuffered(ctx, false)
		}

		s.mu.Lock()
		ending := s.ending
		s.mu.Unlock()
		if ending {
			s.transcribeBuffered(ctx, true)
			return
		}
	}
}

func (s *whisperStream) transcribeBuffered(ctx context.Context, final bool) {
	s.mu.Lock()
	frames := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if len(frames) == 0 {
		return
	}

	wavData, duration, err := framesToWAV(frames)
	if err != nil {
		slog.Error("openai stt: combine frames failed", slog.Any("error", err))
		return
	}
	if duration < 100*time.Millisecond && !final {
		s.mu.Lock()
		s.buffer = append(frames, s.buffer...)
		s.mu.Unlock()
		return
	}

	var text, language string
	err = ai.Retry(ctx, "openai-whisper", s.connOpts, func(callCtx context.Context) error {
		resp, err := s.whisper.client.CreateTranscription(callCtx, openai.AudioRequest{
			Model:    s.whisper.model,
			Language: s.whisper.language,
			Format:   openai.AudioResponseFormatJSON,
			Reader:   bytes.NewReader(wavData),
			FilePath: "audio.wav",
		})
		if err != nil {
			return ai.NewRecoverableError(err, "whisper transcription")
		}
		text, language = resp.Text, resp.Language
		return nil
	})
	if err != nil {
		slog.Error("openai stt: transcription failed", slog.Any("error", err))
		return
	}
	if text == "" {
		return
	}

	event := stt.Event{
		Type:         stt.EventFinalTranscript,
		Alternatives: []stt.Alternative{{Text: text, Language: language, Confidence: 1}},
	}
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// framesToWAV concatenates frames into one 16-bit PCM WAV buffer.
func framesToWAV(frames []*rtc.AudioFrame) ([]byte, time.Duration, error) {
	if len(frames) == 0 {
		return nil, 0, fmt.Errorf("no frames to combine")
	}

	sampleRate := frames[0].SampleRate
	channels := frames[0].NumChannels

	var data bytes.Buffer
	var duration time.Duration
	for _, f := range frames {
		data.Write(f.Data)
		duration += f.Duration()
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	byteRate := uint32(sampleRate * channels * 2)
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())

	return buf.Bytes(), duration, nil
}
