// Package agent implements the VoicePipelineAgent orchestrator: the FIFO
// speech queue and nested-speech driver that couple turn-taking, LLM/tool
// replies, and synthesis/playout into one conversation loop (spec.md §4.2).
package agent

import (
	"context"
	"expvar"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/deque"

	"github.com/duplexvox/voicecore/pkg/ai"
	"github.com/duplexvox/voicecore/pkg/ai/llm"
	"github.com/duplexvox/voicecore/pkg/ai/stt"
	"github.com/duplexvox/voicecore/pkg/ai/tts"
	"github.com/duplexvox/voicecore/pkg/ai/vad"
	"github.com/duplexvox/voicecore/pkg/chat"
	"github.com/duplexvox/voicecore/pkg/job"
	"github.com/duplexvox/voicecore/pkg/rtc"
	"github.com/duplexvox/voicecore/pkg/tools"
	"github.com/duplexvox/voicecore/pkg/turn"
	"github.com/duplexvox/voicecore/pkg/version"
	"github.com/duplexvox/voicecore/pkg/voice"
	"github.com/duplexvox/voicecore/pkg/voice/endpoint"
	"github.com/duplexvox/voicecore/pkg/voice/playout"
	"github.com/duplexvox/voicecore/pkg/voice/synth"
)

// AgentState is the coarse conversational state, reported for observability
// only — the speech queue and nested-speech driver are the actual source
// of truth for what the agent is doing.
type AgentState int32

const (
	StateIdle AgentState = iota
	StateListening
	StateThinking
	StateSpeaking
)

func (s AgentState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateListening:
		return "Listening"
	case StateThinking:
		return "Thinking"
	case StateSpeaking:
		return "Speaking"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Metrics holds running counters exposed for observability, in the
// teacher's expvar idiom.
type Metrics struct {
	FirstWordLatency     *expvar.Float
	SessionDuration      *expvar.Float
	StateTransitions     *expvar.Map
	EndOfUtteranceDelay  *expvar.Float
	TurnInferenceLatency *expvar.Float
	EOUProbability       *expvar.Float
}

func newMetrics() *Metrics {
	stateTransitions := &expvar.Map{}
	stateTransitions.Init()
	return &Metrics{
		FirstWordLatency:     &expvar.Float{},
		SessionDuration:      &expvar.Float{},
		StateTransitions:     stateTransitions,
		EndOfUtteranceDelay:  &expvar.Float{},
		TurnInferenceLatency: &expvar.Float{},
		EOUProbability:       &expvar.Float{},
	}
}

// Config holds everything needed to build an Agent session.
type Config struct {
	STT          stt.STT
	TTS          tts.TTS
	LLM          llm.LLM
	VAD          vad.VAD
	TurnDetector turn.Detector
	Tools        *tools.Registry

	MicIn           <-chan *rtc.AudioFrame
	Sink            playout.Sink
	BackgroundAudio *BackgroundAudio

	SystemPrompt string
	Voice        string
	Language     string

	MinEndpointingDelay time.Duration
	MaxEndpointingDelay time.Duration

	ConnOptions ai.APIConnectOptions
}

// Agent runs one conversation: a FIFO speech queue, draining one
// voice.SpeechHandle at a time, with nested tool-call replies interleaved
// ahead of their parent's completion (spec.md §4.2).
type Agent struct {
	cfg Config

	chatCtx  *chat.Context
	endpoint *endpoint.Validator
	output   *synth.AgentOutput
	play     *playout.AgentPlayout

	state atomic.Int32

	queueMu sync.Mutex
	queue   deque.Deque[*voice.SpeechHandle]
	notify  chan struct{}

	current         atomic.Pointer[voice.SpeechHandle]
	pendingUserText string
	pendingMu       sync.Mutex

	sessionStart  time.Time
	firstWordOnce sync.Once
	metrics       *Metrics

	events chan Event
}

// New builds an Agent from cfg, which must supply STT, TTS, LLM, VAD and a
// Sink at minimum; TurnDetector is optional.
func New(cfg Config) (*Agent, error) {
	if cfg.STT == nil || cfg.TTS == nil || cfg.LLM == nil || cfg.VAD == nil {
		return nil, fmt.Errorf("agent: STT, TTS, LLM and VAD are all required")
	}
	// MicIn may be nil here and supplied later by StartInRoom, which attaches
	// a HumanInput-backed channel before calling Start.
	if cfg.Sink == nil {
		return nil, fmt.Errorf("agent: Sink is required")
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.Tools == nil {
		cfg.Tools = tools.NewRegistry()
	}
	if cfg.ConnOptions == (ai.APIConnectOptions{}) {
		cfg.ConnOptions = ai.DefaultAPIConnectOptions()
	}

	a := &Agent{
		cfg:      cfg,
		chatCtx:  chat.New(cfg.SystemPrompt),
		notify:   make(chan struct{}, 1),
		metrics:  newMetrics(),
		events:   make(chan Event, 64),
		output: synth.New(synth.Options{
			TTS:         cfg.TTS,
			TTSOptions:  tts.Options{Voice: cfg.Voice, Language: cfg.Language},
			ConnOptions: cfg.ConnOptions,
		}),
		play: playout.New(WithBackgroundAudio(cfg.Sink, cfg.BackgroundAudio)),
	}

	a.endpoint = endpoint.New(endpoint.Options{
		MinEndpointingDelay: cfg.MinEndpointingDelay,
		MaxEndpointingDelay: cfg.MaxEndpointingDelay,
		TurnDetector:        cfg.TurnDetector,
		Language:            cfg.Language,
	})
	a.endpoint.SetCallback(a.onEndOfTurn)
	a.endpoint.SetChatContextSource(a.chatCtx.Messages)

	a.setState(StateIdle)
	return a, nil
}

// State returns the agent's current coarse state.
func (a *Agent) State() AgentState { return AgentState(a.state.Load()) }

func (a *Agent) setState(s AgentState) {
	old := AgentState(a.state.Swap(int32(s)))
	key := fmt.Sprintf("%s_to_%s", old, s)
	if counter := a.metrics.StateTransitions.Get(key); counter != nil {
		counter.(*expvar.Int).Add(1)
	} else {
		c := &expvar.Int{}
		c.Set(1)
		a.metrics.StateTransitions.Set(key, c)
	}
}

// Say enqueues a literal utterance, bypassing the LLM entirely — used for
// greetings and canned responses.
func (a *Agent) Say(text string, allowInterruptions bool) *voice.SpeechHandle {
	h := voice.NewSpeechHandle(voice.NewTextSource(text))
	h.AllowInterruptions = allowInterruptions
	a.enqueue(h)
	return h
}

// Start runs the session until ctx or j's context is cancelled, or until the
// STT stream's event channel closes (for example after MicIn is closed).
func (a *Agent) Start(ctx context.Context, j *job.Job) error {
	if a.cfg.MicIn == nil {
		return fmt.Errorf("agent: no microphone input attached (set Config.MicIn or call StartInRoom)")
	}
	if j != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-j.Context.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	a.sessionStart = time.Now()
	slog.Info("agent: starting session", slog.String("build", version.GetVersionInfo()))
	defer func() {
		a.metrics.SessionDuration.Set(time.Since(a.sessionStart).Seconds())
	}()

	vadStream, err := a.cfg.VAD.Stream(ctx)
	if err != nil {
		return fmt.Errorf("agent: starting VAD: %w", err)
	}
	defer vadStream.Close()

	sttStream, err := a.cfg.STT.Stream(ctx, stt.Config{SampleRate: 48000, NumChannels: 1, Language: a.cfg.Language}, a.cfg.ConnOptions)
	if err != nil {
		return fmt.Errorf("agent: starting STT: %w", err)
	}
	defer sttStream.Close()

	go a.feedAudio(ctx, vadStream, sttStream)

	g := newSpeechQueueDriver(a)
	go g.run(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-vadStream.Events():
			a.handleVADEvent(ev)

		case ev, ok := <-sttStream.Events():
			if !ok {
				return nil
			}
			a.handleSTTEvent(ev)
		}
	}
}

// feedAudio tees microphone frames to both VAD and STT, the two consumers
// of raw input audio.
func (a *Agent) feedAudio(ctx context.Context, vadStream vad.Stream, sttStream stt.Stream) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-a.cfg.MicIn:
			if !ok {
				sttStream.EndInput()
				return
			}
			_ = vadStream.Push(frame)
			_ = sttStream.Push(frame)
		}
	}
}

func (a *Agent) handleVADEvent(ev vad.Event) {
	switch ev.Type {
	case vad.EventStartOfSpeech:
		a.endpoint.OnStartOfSpeech()
		a.setState(StateListening)
		a.interruptIfSpeaking()
		a.publish(Event{Type: EventUserStartedSpeaking})
	case vad.EventEndOfSpeech:
		a.endpoint.OnEndOfSpeech()
		a.publish(Event{Type: EventUserStoppedSpeaking})
	}
}

func (a *Agent) handleSTTEvent(ev stt.Event) {
	if ev.Type != stt.EventFinalTranscript || len(ev.Alternatives) == 0 {
		return
	}
	text := ev.Alternatives[0].Text
	if text == "" {
		return
	}
	a.pendingMu.Lock()
	a.pendingUserText = text
	a.pendingMu.Unlock()
	a.endpoint.OnFinalTranscript(text)
}

// interruptIfSpeaking implements the barge-in rule (spec.md §4.2
// should_interrupt): user speech cuts off the currently playing handle,
// provided it allows interruption.
func (a *Agent) interruptIfSpeaking() {
	cur := a.current.Load()
	if cur == nil || cur.Interrupted() || !cur.AllowInterruptions {
		return
	}
	cur.Interrupt()
}

// onEndOfTurn fires when the endpointing validator decides the user has
// finished speaking: the committed transcript starts a fresh LLM round.
func (a *Agent) onEndOfTurn() {
	a.pendingMu.Lock()
	text := a.pendingUserText
	a.pendingUserText = ""
	a.pendingMu.Unlock()
	if text == "" {
		return
	}

	a.setState(StateThinking)
	h := voice.NewSpeechHandle(voice.SpeechSource{})
	h.AllowInterruptions = true
	h.UserQuestion = text
	go a.runLLM(context.Background(), h, text)
}

// enqueue pushes h onto the FIFO speech queue and wakes the driver.
func (a *Agent) enqueue(h *voice.SpeechHandle) {
	a.queueMu.Lock()
	a.queue.PushBack(h)
	a.queueMu.Unlock()
	select {
	case a.notify <- struct{}{}:
	default:
	}
}

// runLLM drives one user turn's tool-calling loop (spec.md §4.7), up to
// maxRounds rounds: the model may request function calls before producing
// its spoken reply. Round trips are
// built against a scratch copy of the chat context (working) so the LLM
// sees them immediately, without committing anything to a.chatCtx — that
// only happens once the resulting speech handle plays out, gated by the
// commit rules in commit.go (spec.md §4.2). If the first call that needs
// one names an AnnouncingTool, its announcement is spoken as nested speech
// under h while the call is in flight (spec.md §4.2 nested tool speech);
// the eventual text-only reply is wrapped in an LLM-adapted SpeechSource and
// enqueued (or nested, once an announcement has played).
func (a *Agent) runLLM(ctx context.Context, h *voice.SpeechHandle, userText string) {
	working := a.chatCtx.Copy()
	working.Append(chat.NewMessage(chat.RoleUser, userText))

	var extraMsgs []chat.Message
	current := h
	announced := false

	const maxRounds = 8
	for round := 0; round < maxRounds; round++ {
		opts := llm.ChatOptions{Functions: a.cfg.Tools.Definitions()}
		stream, err := a.cfg.LLM.Chat(ctx, working.Messages(), opts, a.cfg.ConnOptions)
		if err != nil {
			slog.Error("llm chat failed", slog.Any("error", err))
			return
		}

		text, calls := drainChatStream(stream)
		if len(calls) == 0 {
			current.Source = voice.NewTextSource(text)
			current.ExtraToolsMessages = extraMsgs
			a.firstWordOnce.Do(func() {
				a.metrics.FirstWordLatency.Set(time.Since(a.sessionStart).Seconds())
			})
			if !announced {
				a.enqueue(current)
			}
			return
		}

		callMsg := chat.NewToolCallMessage(calls)
		working.Append(callMsg)
		extraMsgs = append(extraMsgs, callMsg)
		current.IsUsingTools = true

		if !announced {
			if text := announcementFor(a.cfg.Tools, calls); text != "" {
				current.Source = voice.NewTextSource(text)
				a.firstWordOnce.Do(func() {
					a.metrics.FirstWordLatency.Set(time.Since(a.sessionStart).Seconds())
				})
				a.enqueue(current)
				announced = true

				next := voice.NewSpeechHandle(voice.SpeechSource{})
				next.AllowInterruptions = true
				current.AddNested(next)
				current.MarkNestedSpeechDone()
				current = next
			}
		}

		a.publish(Event{Type: EventFunctionCallsCollected, FunctionCalls: callInfos(calls)})

		calledFuncs := make([]tools.CalledFunction, 0, len(calls))
		for _, call := range calls {
			result := a.cfg.Tools.Execute(ctx, tools.FunctionCallInfo{CallID: call.ID, Name: call.Name, Arguments: call.Arguments})
			calledFuncs = append(calledFuncs, result)

			var resultMsg chat.Message
			if result.Err != nil {
				resultMsg = chat.NewToolResultMessage(call.ID, fmt.Sprintf("error: %v", result.Err))
			} else {
				resultMsg = chat.NewToolResultMessage(call.ID, result.Result)
			}
			working.Append(resultMsg)
			extraMsgs = append(extraMsgs, resultMsg)
		}
		a.publish(Event{Type: EventFunctionCallsFinished, CalledFuncs: calledFuncs})
	}

	slog.Warn("agent: max tool-call rounds reached, replying without further tools")
	stream, err := a.cfg.LLM.Chat(ctx, working.Messages(), llm.ChatOptions{}, a.cfg.ConnOptions)
	if err != nil {
		slog.Error("llm chat failed", slog.Any("error", err))
		return
	}
	text, _ := drainChatStream(stream)
	current.Source = voice.NewTextSource(text)
	current.ExtraToolsMessages = extraMsgs
	if !announced {
		a.enqueue(current)
	}
}

// announcementFor returns the first AnnouncingTool announcement among the
// tools named by calls, or "" if none of them opt in.
func announcementFor(reg *tools.Registry, calls []chat.ToolCall) string {
	for _, call := range calls {
		tool, ok := reg.Lookup(call.Name)
		if !ok {
			continue
		}
		if at, ok := tool.(tools.AnnouncingTool); ok {
			if text := at.Announcement(); text != "" {
				return text
			}
		}
	}
	return ""
}

// drainChatStream consumes an LLM stream to completion, concatenating text
// deltas and collecting any tool calls the final delta carries.
func drainChatStream(stream llm.Stream) (string, []chat.ToolCall) {
	defer stream.Close()
	var text string
	var calls []chat.ToolCall
	for {
		chunk, err := stream.Recv()
		if err != nil {
			break
		}
		text += chunk.Delta.Content
		calls = append(calls, chunk.Delta.ToolCalls...)
	}
	return text, calls
}
