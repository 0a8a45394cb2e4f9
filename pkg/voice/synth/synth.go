// Package synth implements AgentOutput, the synthesis pipeline that turns a
// voice.SpeechSource plus an optional LLM stream into an audio frame stream
// and a synchronized transcript stream (spec.md §4.3).
package synth

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/duplexvox/voicecore/pkg/ai"
	"github.com/duplexvox/voicecore/pkg/ai/llm"
	"github.com/duplexvox/voicecore/pkg/ai/tts"
	"github.com/duplexvox/voicecore/pkg/voice"
)

const bufCapacity = 32

// BeforeTTSFunc rewrites text before it reaches the TTS stream — e.g. a
// pronunciation substitution table. Returning the input unchanged is a
// valid no-op implementation.
type BeforeTTSFunc func(text string) string

// Options configures one AgentOutput.Synthesize call.
type Options struct {
	TTS         tts.TTS
	TTSOptions  tts.Options
	ConnOptions ai.APIConnectOptions
	BeforeTTS   BeforeTTSFunc
}

// AgentOutput drives the synthesis pipeline for one owning session.
type AgentOutput struct {
	opts Options
}

// New returns an AgentOutput bound to opts.
func New(opts Options) *AgentOutput {
	return &AgentOutput{opts: opts}
}

// Synthesize starts the pipeline for source, returning a SynthesisHandle
// immediately; synthesis itself runs asynchronously under ctx, cancelled by
// an interrupt or by ctx.Done.
func (o *AgentOutput) Synthesize(ctx context.Context, speechID string, source voice.SpeechSource) (*voice.SynthesisHandle, error) {
	handle := voice.NewSynthesisHandle(speechID, bufCapacity)

	ttsSource, transcriptSource, err := o.normalize(ctx, source)
	if err != nil {
		return nil, err
	}

	go o.run(ctx, handle, ttsSource, transcriptSource)
	return handle, nil
}

// normalize implements source normalization + tee (spec.md §4.3 stages
// 1-2): a literal string becomes a single-item sequence; an LLMStream is
// adapted to text and teed into separate tts/transcript channels; as tee
// describes, a slow reader holds back the other rather than letting text
// be dropped or buffered without bound.
func (o *AgentOutput) normalize(ctx context.Context, source voice.SpeechSource) (<-chan string, <-chan string, error) {
	switch source.Kind {
	case voice.SourceText:
		tts := make(chan string, 1)
		transcript := make(chan string, 1)
		tts <- source.Text
		transcript <- source.Text
		close(tts)
		close(transcript)
		return tts, transcript, nil

	case voice.SourceLLMStream:
		return tee(ctx, adaptLLMStream(ctx, source.LLM)), nil

	case voice.SourceSequence:
		a, b := tee(ctx, source.Sequence)
		return a, b, nil

	default:
		return nil, nil, nil
	}
}

// tee splits in into two independently-paced channels with bounded
// backpressure: a reader that falls behind blocks the faster one via the
// unbuffered forwarding goroutine, rather than dropping or unboundedly
// buffering.
func tee(ctx context.Context, in <-chan string) (<-chan string, <-chan string) {
	a := make(chan string)
	b := make(chan string)
	go func() {
		defer close(a)
		defer close(b)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					return
				}
				if !forward(ctx, a, v) {
					return
				}
				if !forward(ctx, b, v) {
					return
				}
			}
		}
	}()
	return a, b
}

func forward(ctx context.Context, ch chan<- string, v string) bool {
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// adaptLLMStream iterates an LLMStream, yielding chunk.Delta.Content when
// non-empty and closing the stream on exit (spec.md §4.3 LLM-to-text
// adaptation).
func adaptLLMStream(ctx context.Context, stream llm.Stream) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			chunk, err := stream.Recv()
			if err != nil {
				return
			}
			if chunk.Delta.Content == "" {
				continue
			}
			if !forward(ctx, out, chunk.Delta.Content) {
				return
			}
		}
	}()
	return out
}

// run executes stages 4-7 of spec.md §4.3: opens the TTS stream, feeds it
// from ttsSource, reads audio into handle's buffer while forwarding a copy
// of the transcript, and guarantees both readers are cancelled together on
// any exit path.
func (o *AgentOutput) run(ctx context.Context, handle *voice.SynthesisHandle, ttsSource, transcriptSource <-chan string) {
	defer handle.CloseFrames()
	defer handle.CloseTranscript()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-handle.InterruptFut():
			cancel()
		case <-ctx.Done():
		}
	}()

	stream, err := o.opts.TTS.Stream(ctx, o.opts.TTSOptions, o.opts.ConnOptions)
	if err != nil {
		return
	}
	defer stream.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for text := range ttsSource {
			if o.opts.BeforeTTS != nil {
				text = o.opts.BeforeTTS(text)
			}
			if err := stream.PushText(text); err != nil {
				return err
			}
			if gctx.Err() != nil {
				return gctx.Err()
			}
		}
		return stream.EndInput()
	})

	g.Go(func() error {
		for audio := range stream.Chunks() {
			handle.PushFrame(audio.Frame)
			if gctx.Err() != nil {
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for text := range transcriptSource {
			handle.PushTranscript(text)
			if gctx.Err() != nil {
				return gctx.Err()
			}
		}
		return nil
	})

	_ = g.Wait()
}
