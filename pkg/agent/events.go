package agent

import (
	"log/slog"

	"github.com/duplexvox/voicecore/pkg/chat"
	"github.com/duplexvox/voicecore/pkg/tools"
)

// EventType names one entry in the Agent surface's event stream (spec.md §6).
type EventType string

const (
	EventUserStartedSpeaking    EventType = "user_started_speaking"
	EventUserStoppedSpeaking    EventType = "user_stopped_speaking"
	EventAgentStartedSpeaking   EventType = "agent_started_speaking"
	EventAgentStoppedSpeaking   EventType = "agent_stopped_speaking"
	EventUserSpeechCommitted    EventType = "user_speech_committed"
	EventAgentSpeechCommitted   EventType = "agent_speech_committed"
	EventAgentSpeechInterrupted EventType = "agent_speech_interrupted"
	EventFunctionCallsCollected EventType = "function_calls_collected"
	EventFunctionCallsFinished  EventType = "function_calls_finished"
	EventMetricsCollected       EventType = "metrics_collected"
)

// MetricsRecord snapshots the session counters at the point a speech turn
// commits (spec.md §6 metrics_collected).
type MetricsRecord struct {
	FirstWordLatencySeconds float64
	SessionDurationSeconds  float64
}

// Event is one entry published on Agent.Events. Only the fields relevant to
// Type are populated; the rest are left zero.
type Event struct {
	Type EventType

	Message       chat.Message
	FunctionCalls []tools.FunctionCallInfo
	CalledFuncs   []tools.CalledFunction
	Metrics       MetricsRecord
}

// Events returns the channel the Agent surface publishes to. The channel is
// never closed while the session runs; callers select on it alongside their
// own context cancellation.
func (a *Agent) Events() <-chan Event { return a.events }

// publish is non-blocking: a slow or absent subscriber drops events rather
// than stalling the speech queue driver, mirroring pkg/job.Room.sendEvent.
func (a *Agent) publish(ev Event) {
	select {
	case a.events <- ev:
	default:
		slog.Warn("agent: events channel full, dropping event", slog.String("event_type", string(ev.Type)))
	}
}

func callInfos(calls []chat.ToolCall) []tools.FunctionCallInfo {
	out := make([]tools.FunctionCallInfo, len(calls))
	for i, c := range calls {
		out[i] = tools.FunctionCallInfo{CallID: c.ID, Name: c.Name, Arguments: c.Arguments}
	}
	return out
}
