package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/webrtc/v3"
)

// Opus over WebRTC is always decoded at 48kHz; HumanInput keeps that rate
// end to end rather than resampling, unlike the teacher's 48kHz->24kHz step.
const (
	humanInputSampleRate = 48000
	humanInputChannels   = 1
	humanInputFrameBytes = humanInputSampleRate / 100 * humanInputChannels * 2 // 10ms, 16-bit PCM
)

// HumanInput decodes one subscribed participant audio track's Opus RTP
// stream into a channel of 10ms AudioFrames — the adapter spec.md §4.6
// calls HumanInput, feeding the VAD/STT pair Agent.Start drives.
type HumanInput struct {
	frames chan *AudioFrame
}

// NewHumanInput starts decoding track in the background until ctx is
// cancelled or the track ends, at which point Frames is closed.
func NewHumanInput(ctx context.Context, track *webrtc.TrackRemote) (*HumanInput, error) {
	decoder, err := opus.NewDecoder(humanInputSampleRate, humanInputChannels)
	if err != nil {
		return nil, fmt.Errorf("rtc: creating opus decoder: %w", err)
	}

	h := &HumanInput{frames: make(chan *AudioFrame, 250)}
	go h.decodeLoop(ctx, track, decoder)
	return h, nil
}

// Frames yields decoded 10ms AudioFrames in arrival order, closed once the
// track ends or ctx is cancelled.
func (h *HumanInput) Frames() <-chan *AudioFrame { return h.frames }

func (h *HumanInput) decodeLoop(ctx context.Context, track *webrtc.TrackRemote, decoder *opus.Decoder) {
	defer close(h.frames)

	pcmBuf := make([]int16, 5760) // 120ms at 48kHz, largest Opus frame
	var pending []byte
	var ts time.Duration

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("rtc: reading RTP packet", slog.Any("error", err))
			}
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		n, err := decoder.Decode(pkt.Payload, pcmBuf)
		if err != nil {
			slog.Warn("rtc: decoding opus frame", slog.Any("error", err))
			continue
		}
		if n == 0 {
			continue
		}

		pending = append(pending, samplesToBytes(pcmBuf[:n])...)
		for len(pending) >= humanInputFrameBytes {
			data := append([]byte(nil), pending[:humanInputFrameBytes]...)
			pending = pending[humanInputFrameBytes:]

			frame, ferr := NewAudioFrame(data, humanInputSampleRate, humanInputChannels, ts)
			if ferr != nil {
				slog.Warn("rtc: building audio frame", slog.Any("error", ferr))
				continue
			}
			ts += frame.Duration()

			select {
			case h.frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}
}

func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s & 0xff)
		out[i*2+1] = byte(s >> 8 & 0xff)
	}
	return out
}
