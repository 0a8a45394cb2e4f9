// Package streamadapter exposes a chunked-only (ChunkedTTS) provider
// through the streaming tts.Stream interface (spec.md §4.5): input text is
// fed through a sentence tokenize.Stream, and each completed sentence is
// synthesized end-to-end, with IsFinal set on the last frame of every
// sentence so downstream consumers can detect sentence boundaries.
package streamadapter

import (
	"context"
	"sync"

	"github.com/duplexvox/voicecore/pkg/ai"
	"github.com/duplexvox/voicecore/pkg/ai/tts"
	"github.com/duplexvox/voicecore/pkg/rtc"
	"github.com/duplexvox/voicecore/pkg/tokenize"
)

const (
	defaultMinTokenLen = 20
	defaultMinCtxLen   = 60
)

// Adapter wraps a ChunkedTTS provider as a streaming tts.TTS.
type Adapter struct {
	chunked tts.ChunkedTTS
}

// New wraps chunked as a streaming TTS provider.
func New(chunked tts.ChunkedTTS) *Adapter {
	return &Adapter{chunked: chunked}
}

func (a *Adapter) Capabilities() tts.Capabilities {
	caps := a.chunked.Capabilities()
	caps.Streaming = true
	return caps
}

func (a *Adapter) Stream(ctx context.Context, opts tts.Options, connOpts ai.APIConnectOptions) (tts.Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &stream{
		chunked:  a.chunked,
		opts:     opts,
		connOpts: connOpts,
		sentence: tokenize.NewSentenceStream(defaultMinTokenLen, defaultMinCtxLen),
		out:      make(chan tts.SynthesizedAudio, 8),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.run()
	return s, nil
}

type stream struct {
	chunked  tts.ChunkedTTS
	opts     tts.Options
	connOpts ai.APIConnectOptions

	sentence *tokenize.Stream
	out      chan tts.SynthesizedAudio

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}
}

func (s *stream) PushText(text string) error {
	s.sentence.PushText(text)
	return nil
}

func (s *stream) Flush() error {
	s.sentence.Flush()
	return nil
}

func (s *stream) EndInput() error {
	s.sentence.EndInput()
	return nil
}

func (s *stream) Chunks() <-chan tts.SynthesizedAudio {
	return s.out
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// run synthesizes each completed sentence in order, forwarding its audio
// with IsFinal set on the last frame.
func (s *stream) run() {
	defer close(s.done)
	defer close(s.out)

	for token := range s.sentence.Tokens() {
		if err := s.synthesizeSentence(token.Text, token.SegmentID); err != nil {
			return
		}
		if s.ctx.Err() != nil {
			return
		}
	}
}

func (s *stream) synthesizeSentence(text, segmentID string) error {
	frames, err := s.chunked.Synthesize(s.ctx, text, s.opts, s.connOpts)
	if err != nil {
		return err
	}

	var pending *rtc.AudioFrame
	flush := func(isFinal bool) bool {
		if pending == nil {
			return true
		}
		select {
		case s.out <- tts.SynthesizedAudio{SegmentID: segmentID, Frame: pending, IsFinal: isFinal}:
			pending = nil
			return true
		case <-s.ctx.Done():
			return false
		}
	}

	for frame := range frames {
		if !flush(false) {
			return s.ctx.Err()
		}
		pending = frame
	}
	flush(true)
	return s.ctx.Err()
}
