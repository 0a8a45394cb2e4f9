package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/duplexvox/voicecore/pkg/voice"
)

// speechQueueDriver drains the Agent's FIFO speech queue one handle at a
// time, synthesizing and playing each to completion (or to an interrupt)
// before advancing — spec.md §4.2's single active-speech invariant.
type speechQueueDriver struct {
	a *Agent
}

func newSpeechQueueDriver(a *Agent) *speechQueueDriver {
	return &speechQueueDriver{a: a}
}

func (d *speechQueueDriver) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.a.notify:
		}

		for {
			h := d.a.popHead()
			if h == nil {
				break
			}
			d.play(ctx, h)
		}
	}
}

// popHead removes and returns the queue's front handle, or nil if empty.
func (a *Agent) popHead() *voice.SpeechHandle {
	a.queueMu.Lock()
	defer a.queueMu.Unlock()
	if a.queue.Len() == 0 {
		return nil
	}
	return a.queue.PopFront()
}

// play synthesizes and plays h to completion, then recursively drains any
// nested speech it accumulated (spec.md §4.2 nested speech driver), before
// returning control to the outer loop for the next queued handle.
func (d *speechQueueDriver) play(ctx context.Context, h *voice.SpeechHandle) {
	d.a.current.Store(h)
	defer d.a.current.Store(nil)
	d.a.setState(StateSpeaking)

	speechCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-h.InterruptFut():
			cancel()
		case <-speechCtx.Done():
		}
	}()

	synthesis, err := d.a.output.Synthesize(speechCtx, h.ID, h.Source)
	if err != nil {
		slog.Error("speech synthesis failed", slog.String("speech_id", h.ID), slog.Any("error", err))
		return
	}
	h.SetSynthesis(synthesis)

	playoutHandle := d.a.play.Attach(synthesis)

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.a.play.Play(speechCtx, synthesis, playoutHandle)
	}()

	go func() {
		select {
		case <-playoutHandle.Started():
			d.a.publish(Event{Type: EventAgentStartedSpeaking})
		case <-done:
		}
	}()

	// Poll the playout handle every 200ms, attempting the user-message
	// commit on each tick, per spec.md §4.2's playout-arbiter commit loop.
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
pollLoop:
	for {
		select {
		case <-done:
			break pollLoop
		case <-ticker.C:
			d.a.tryCommitUserMessage(h, playoutHandle)
		}
	}

	played := time.Duration(playoutHandle.TimePlayed() * float64(time.Second))
	spokenText := playoutHandle.PlayedText()
	h.RecordPlayback(played, spokenText != "")
	h.SetSpokenText(spokenText)

	// One last attempt catches an utterance that started and finished
	// entirely between two ticks (or before the first one fired).
	d.a.tryCommitUserMessage(h, playoutHandle)

	if h.Interrupted() {
		slog.Info("speech interrupted", slog.String("speech_id", h.ID), slog.Duration("played", played))
	}

	d.a.publish(Event{Type: EventAgentStoppedSpeaking})
	d.a.commitAssistantMessage(h)

	h.MarkNestedSpeechDone()
	for {
		nested := h.PopNested()
		if nested == nil {
			break
		}
		d.play(ctx, nested)
	}

	d.a.setState(StateIdle)
}
