package openai

import (
	"context"
	"testing"
	"time"

	"github.com/duplexvox/voicecore/pkg/ai"
	"github.com/duplexvox/voicecore/pkg/ai/stt"
	"github.com/duplexvox/voicecore/pkg/rtc"
)

func TestWhisperSTT_Configuration(t *testing.T) {
	_, err := NewWhisperSTT(Config{})
	if err == nil {
		t.Error("Expected error for missing API key")
	}

	cfg := Config{
		APIKey:   "test-key",
		Model:    "whisper-1",
		Language: "en",
	}

	whisper, err := NewWhisperSTT(cfg)
	if err != nil {
		t.Fatalf("Failed to create WhisperSTT: %v", err)
	}

	if whisper.model != "whisper-1" {
		t.Errorf("Expected model whisper-1, got %s", whisper.model)
	}

	if whisper.language != "en" {
		t.Errorf("Expected language en, got %s", whisper.language)
	}
}

func TestWhisperSTT_Capabilities(t *testing.T) {
	whisper, err := NewWhisperSTT(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("Failed to create WhisperSTT: %v", err)
	}

	caps := whisper.Capabilities()

	if !caps.Streaming {
		t.Error("Expected streaming to be supported")
	}

	if caps.InterimResults {
		t.Error("Expected interim results to be false for Whisper")
	}

	if len(caps.SupportedLanguages) == 0 {
		t.Error("Expected supported languages to be populated")
	}

	langMap := make(map[string]bool)
	for _, lang := range caps.SupportedLanguages {
		langMap[lang] = true
	}

	expectedLangs := []string{"en", "es", "fr", "de", "ja", "zh"}
	for _, lang := range expectedLangs {
		if !langMap[lang] {
			t.Errorf("Expected language %s to be supported", lang)
		}
	}
}

// TestWhisperSTT_Stream exercises Push/EndInput/Close without ever hitting
// the network: the batching goroutine only transcribes on its 3-second
// ticker, and the stream is closed long before the first tick, so no
// transcription is attempted and no event is emitted, but the stream's
// bookkeeping (ending flag, closed channel) still has to behave.
func TestWhisperSTT_Stream(t *testing.T) {
	whisper, err := NewWhisperSTT(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("Failed to create WhisperSTT: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stream, err := whisper.Stream(ctx, stt.Config{SampleRate: 16000, NumChannels: 1, Language: "en"}, ai.APIConnectOptions{MaxRetry: 0})
	if err != nil {
		t.Fatalf("Failed to create stream: %v", err)
	}

	frame := rtc.FrameFromSamples(make([]int16, 160), 16000, 1, 0)

	if err := stream.Push(frame); err != nil {
		t.Errorf("Failed to push audio frame: %v", err)
	}

	if err := stream.EndInput(); err != nil {
		t.Errorf("Failed to end input: %v", err)
	}

	if err := stream.Push(frame); err == nil {
		t.Error("Expected error when pushing to a stream that has ended input")
	}

	if err := stream.Close(); err != nil {
		t.Errorf("Failed to close stream: %v", err)
	}
}

func TestFramesToWAV(t *testing.T) {
	frames := []*rtc.AudioFrame{
		rtc.FrameFromSamples([]int16{1, 2, 3, 4}, 16000, 1, 0),
		rtc.FrameFromSamples([]int16{5, 6, 7, 8}, 16000, 1, 10*time.Millisecond),
	}

	wavData, duration, err := framesToWAV(frames)
	if err != nil {
		t.Fatalf("Failed to combine frames: %v", err)
	}

	if duration <= 0 {
		t.Errorf("Expected positive duration, got %v", duration)
	}

	if len(wavData) < 44 {
		t.Errorf("WAV data too short: %d bytes", len(wavData))
	}

	if string(wavData[0:4]) != "RIFF" {
		t.Error("Expected RIFF header")
	}
	if string(wavData[8:12]) != "WAVE" {
		t.Error("Expected WAVE format")
	}
	if string(wavData[12:16]) != "fmt " {
		t.Error("Expected fmt chunk")
	}
	if string(wavData[36:40]) != "data" {
		t.Error("Expected data chunk")
	}
}

func TestFramesToWAV_Empty(t *testing.T) {
	if _, _, err := framesToWAV(nil); err == nil {
		t.Error("Expected error for empty frames")
	}
}
