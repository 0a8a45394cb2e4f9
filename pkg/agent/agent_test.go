package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	llmfake "github.com/duplexvox/voicecore/pkg/ai/llm/fake"
	sttfake "github.com/duplexvox/voicecore/pkg/ai/stt/fake"
	ttsfake "github.com/duplexvox/voicecore/pkg/ai/tts/fake"
	vadfake "github.com/duplexvox/voicecore/pkg/ai/vad/fake"
	"github.com/duplexvox/voicecore/pkg/job"
	"github.com/duplexvox/voicecore/pkg/rtc"
	turnfake "github.com/duplexvox/voicecore/pkg/turn/fake"
)

// countingSink implements playout.Sink, recording every frame it receives.
type countingSink struct {
	mu    sync.Mutex
	count int
}

func (s *countingSink) WriteFrame(ctx context.Context, frame *rtc.AudioFrame, volume float64) error {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	return nil
}

func (s *countingSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func baseConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		STT:          sttfake.NewFakeSTT("Hello world"),
		TTS:          ttsfake.NewFakeTTS(),
		LLM:          llmfake.NewFakeLLM("Echo: Hello world"),
		VAD:          vadfake.NewFakeVAD(0.3),
		TurnDetector: turnfake.NewFakeTurnDetector(),
		MicIn:        make(<-chan *rtc.AudioFrame),
		Sink:         &countingSink{},
	}
}

func TestAgent_New(t *testing.T) {
	valid := baseConfig(t)
	if a, err := New(valid); err != nil || a == nil {
		t.Fatalf("expected a valid agent, got agent=%v err=%v", a, err)
	}

	missingSTT := baseConfig(t)
	missingSTT.STT = nil
	if _, err := New(missingSTT); err == nil {
		t.Error("expected error for missing STT")
	}

	missingTTS := baseConfig(t)
	missingTTS.TTS = nil
	if _, err := New(missingTTS); err == nil {
		t.Error("expected error for missing TTS")
	}

	missingLLM := baseConfig(t)
	missingLLM.LLM = nil
	if _, err := New(missingLLM); err == nil {
		t.Error("expected error for missing LLM")
	}

	missingVAD := baseConfig(t)
	missingVAD.VAD = nil
	if _, err := New(missingVAD); err == nil {
		t.Error("expected error for missing VAD")
	}

	missingSink := baseConfig(t)
	missingSink.Sink = nil
	if _, err := New(missingSink); err == nil {
		t.Error("expected error for missing Sink")
	}
}

// TestAgent_Start_RequiresMicIn checks that a session with no microphone
// input attached (neither Config.MicIn nor StartInRoom) fails fast instead
// of hanging forever on a nil channel read.
func TestAgent_Start_RequiresMicIn(t *testing.T) {
	cfg := baseConfig(t)
	cfg.MicIn = nil

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create agent: %v", err)
	}

	if err := a.Start(context.Background(), nil); err == nil {
		t.Error("expected error starting without microphone input")
	}
}

func TestAgent_InitialState(t *testing.T) {
	a, err := New(baseConfig(t))
	if err != nil {
		t.Fatalf("failed to create agent: %v", err)
	}
	if a.State() != StateIdle {
		t.Errorf("expected initial state Idle, got %v", a.State())
	}
}

func TestAgent_StateString(t *testing.T) {
	tests := []struct {
		state    AgentState
		expected string
	}{
		{StateIdle, "Idle"},
		{StateListening, "Listening"},
		{StateThinking, "Thinking"},
		{StateSpeaking, "Speaking"},
		{AgentState(999), "Unknown(999)"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

// TestAgent_SimulateConversation drives the agent through a full speech ->
// turn-taking -> LLM -> playout round, using deterministic fakes.
func TestAgent_SimulateConversation(t *testing.T) {
	micIn := make(chan *rtc.AudioFrame, 100)
	sink := &countingSink{}

	cfg := baseConfig(t)
	cfg.MicIn = micIn
	cfg.Sink = sink
	cfg.MinEndpointingDelay = 50 * time.Millisecond
	cfg.MaxEndpointingDelay = 500 * time.Millisecond

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create agent: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	j, err := job.New(ctx, job.Config{RoomName: "conversation-test", Timeout: time.Minute})
	if err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- a.Start(ctx, j) }()

	go func() {
		defer close(micIn)
		silence := silentFrame()
		for i := 0; i < 5; i++ {
			select {
			case micIn <- silence:
			case <-ctx.Done():
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		for i := 0; i < 20; i++ {
			select {
			case micIn <- speechFrame(i):
			case <-ctx.Done():
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		for i := 0; i < 10; i++ {
			select {
			case micIn <- silence:
			case <-ctx.Done():
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	select {
	case err := <-done:
		if err != nil && err != context.Canceled && err != context.DeadlineExceeded {
			t.Errorf("agent failed: %v", err)
		}
	case <-time.After(2800 * time.Millisecond):
		// Session still running at the deadline is fine; Start returns on ctx
		// cancellation, a hard STT/VAD failure, or once the STT event stream
		// closes after micIn is closed.
	}

	if sink.Count() == 0 {
		t.Error("expected at least one frame written to the sink during the conversation")
	}
}

func silentFrame() *rtc.AudioFrame {
	return &rtc.AudioFrame{Data: make([]byte, 960), SampleRate: 48000, SamplesPerChannel: 480, NumChannels: 1}
}

func speechFrame(i int) *rtc.AudioFrame {
	f := silentFrame()
	for j := range f.Data {
		f.Data[j] = byte((i + j) % 256)
	}
	if f.Data[0] == 0 {
		f.Data[0] = 1
	}
	return f
}
