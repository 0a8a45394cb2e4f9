package agent

import (
	"strings"
	"time"

	"github.com/duplexvox/voicecore/pkg/chat"
	"github.com/duplexvox/voicecore/pkg/voice"
	"github.com/duplexvox/voicecore/pkg/voice/endpoint"
)

// tryCommitUserMessage implements the spec.md §4.2 user-message commit
// rule. It is called on every 200ms playout poll tick and once more after
// playout ends, so a turn that starts and finishes between ticks is still
// caught. Committing is idempotent: h.MarkUserCommitted gates it to once.
func (a *Agent) tryCommitUserMessage(h *voice.SpeechHandle, ph *voice.PlayoutHandle) {
	if h.UserQuestion == "" || h.UserCommitted() || h.Interrupted() {
		return
	}

	played := time.Duration(ph.TimePlayed() * float64(time.Second))
	spokenNonBlank := strings.TrimSpace(ph.PlayedText()) != ""

	eligible := !h.AllowInterruptions || h.IsUsingTools || (spokenNonBlank && played >= endpoint.MinTimePlayedForCommit)
	if !eligible {
		return
	}

	h.MarkUserCommitted()
	msg := chat.NewMessage(chat.RoleUser, h.UserQuestion)
	a.chatCtx.Append(msg)
	a.publish(Event{Type: EventUserSpeechCommitted, Message: msg})
}

// commitAssistantMessage implements the spec.md §4.2 assistant-message
// commit rule, called once playout (and any barge-in) has settled. If the
// handle was interrupted before any audio played, SpokenText is empty and
// no assistant message is appended (any ExtraToolsMessages still are) —
// spec.md §8's zero-playback boundary case.
func (a *Agent) commitAssistantMessage(h *voice.SpeechHandle) {
	if !h.AddToChatCtx {
		return
	}
	if h.UserQuestion != "" && !h.UserCommitted() {
		return
	}

	for _, m := range h.ExtraToolsMessages {
		a.chatCtx.Append(m)
	}

	var msg chat.Message
	if spoken := h.SpokenText(); spoken != "" {
		if last, ok := a.chatCtx.Last(); ok && h.FncTextMessageID != "" && last.ID == h.FncTextMessageID {
			a.chatCtx.ReplaceLast(spoken)
			msg, _ = a.chatCtx.Last()
		} else {
			if last, ok := a.chatCtx.Last(); ok && last.HasToolCalls() {
				a.chatCtx.ClearLastContent()
			}
			msg = chat.NewMessage(chat.RoleAssistant, spoken)
			a.chatCtx.Append(msg)
		}
	}

	if h.Interrupted() {
		a.publish(Event{Type: EventAgentSpeechInterrupted, Message: msg})
	} else {
		a.publish(Event{Type: EventAgentSpeechCommitted, Message: msg})
	}

	a.publish(Event{Type: EventMetricsCollected, Metrics: MetricsRecord{
		FirstWordLatencySeconds: a.metrics.FirstWordLatency.Value(),
		SessionDurationSeconds:  time.Since(a.sessionStart).Seconds(),
	}})
}
