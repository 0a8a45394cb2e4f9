package openai

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/duplexvox/voicecore/pkg/ai"
	"github.com/duplexvox/voicecore/pkg/ai/tts"
	"github.com/duplexvox/voicecore/pkg/rtc"
	openai "github.com/sashabaranov/go-openai"
)

const ttsSampleRate = 24000

// OpenAITTS implements tts.ChunkedTTS over OpenAI's speech API, requesting
// raw PCM so output needs no codec to become rtc.AudioFrames. It is wrapped
// into a streaming tts.TTS by pkg/ai/tts/streamadapter (spec.md §4.5).
type OpenAITTS struct {
	client *openai.Client
	model  string
	voice  string
}

// newOpenAITTS creates a new OpenAI TTS instance.
func newOpenAITTS(config map[string]any) (any, error) {
	var apiKey string
	if key, ok := config["api_key"].(string); ok {
		apiKey = key
	} else {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (set OPENAI_API_KEY environment variable or provide api_key in config)")
	}

	model, ok := config["model"].(string)
	if !ok || model == "" {
		model = "tts-1"
	}
	voice, ok := config["voice"].(string)
	if !ok || voice == "" {
		voice = "alloy"
	}

	return &OpenAITTS{client: openai.NewClient(apiKey), model: model, voice: voice}, nil
}

func (o *OpenAITTS) Capabilities() tts.Capabilities {
	return tts.Capabilities{
		Streaming:            false,
		SupportedLanguages:   []string{"en", "es", "fr", "de", "it", "pt", "ru", "ja", "ko", "zh"},
		SupportedVoices:      []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"},
		SampleRates:          []int{ttsSampleRate},
		SupportsSpeedControl: true,
	}
}

// Synthesize requests PCM audio for text and decodes it into 10ms frames.
func (o *OpenAITTS) Synthesize(ctx context.Context, text string, opts tts.Options, connOpts ai.APIConnectOptions) (<-chan *rtc.AudioFrame, error) {
	voice := o.voice
	if opts.Voice != "" {
		voice = opts.Voice
	}

	req := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	}
	if opts.Speed > 0 {
		req.Speed = opts.Speed
	}

	var resp io.ReadCloser
	err := ai.Retry(ctx, "openai-tts", connOpts, func(callCtx context.Context) error {
		r, err := o.client.CreateSpeech(callCtx, req)
		if err != nil {
			return ai.NewRecoverableError(err, "openai speech synthesis")
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(chan *rtc.AudioFrame, 8)
	go decodePCMFrames(ctx, resp, out)
	return out, nil
}

// decodePCMFrames slices a 16-bit mono 24kHz PCM stream into 10ms frames.
func decodePCMFrames(ctx context.Context, resp io.ReadCloser, out chan<- *rtc.AudioFrame) {
	defer close(out)
	defer resp.Close()

	const samplesPerFrame = ttsSampleRate / 100 // 10ms
	reader := bufio.NewReader(resp)
	buf := make([]int16, samplesPerFrame)

	for {
		n := 0
		for n < samplesPerFrame {
			var sample int16
			if err := binary.Read(reader, binary.LittleEndian, &sample); err != nil {
				if n > 0 {
					frame := rtc.FrameFromSamples(buf[:n], ttsSampleRate, 1, 0)
					select {
					case out <- frame:
					case <-ctx.Done():
					}
				}
				return
			}
			buf[n] = sample
			n++
		}
		frame := rtc.FrameFromSamples(append([]int16(nil), buf...), ttsSampleRate, 1, 0)
		select {
		case out <- frame:
		case <-ctx.Done():
			return
		}
	}
}
