// Package rtc holds the AudioFrame bus type shared by every VAD/STT/TTS
// boundary and the HumanInput participant-track adapter (spec.md §2, §4.6).
package rtc

import (
	"fmt"
	"time"
)

// AudioFrame is exactly 10 ms of 16-bit little-endian PCM.
// len(Data) == SamplesPerChannel * NumChannels * 2.
// A zero Timestamp means "live"; otherwise it is relative to stream start.
type AudioFrame struct {
	Data              []byte
	SampleRate        int
	SamplesPerChannel int
	NumChannels       int
	Timestamp         time.Duration
}

// NewAudioFrame validates data against the expected 10ms frame size and
// builds an AudioFrame.
func NewAudioFrame(data []byte, sampleRate, numChannels int, timestamp time.Duration) (*AudioFrame, error) {
	samplesPerChannel := sampleRate / 100
	expectedLen := samplesPerChannel * numChannels * 2
	if len(data) != expectedLen {
		return nil, fmt.Errorf("rtc: AudioFrame data length mismatch: got %d bytes, expected %d bytes for %dHz %d-channel 10ms audio",
			len(data), expectedLen, sampleRate, numChannels)
	}
	return &AudioFrame{
		Data:              data,
		SampleRate:        sampleRate,
		SamplesPerChannel: samplesPerChannel,
		NumChannels:       numChannels,
		Timestamp:         timestamp,
	}, nil
}

// Clone returns a deep copy of f.
func (f *AudioFrame) Clone() *AudioFrame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return &AudioFrame{
		Data:              data,
		SampleRate:        f.SampleRate,
		SamplesPerChannel: f.SamplesPerChannel,
		NumChannels:       f.NumChannels,
		Timestamp:         f.Timestamp,
	}
}

// Duration is always 10ms for a well-formed frame.
func (f *AudioFrame) Duration() time.Duration { return 10 * time.Millisecond }

// Samples reinterprets Data as little-endian int16 samples.
func (f *AudioFrame) Samples() []int16 {
	out := make([]int16, len(f.Data)/2)
	for i := range out {
		out[i] = int16(f.Data[i*2]) | int16(f.Data[i*2+1])<<8
	}
	return out
}

// FrameFromSamples builds a frame from int16 PCM samples. SamplesPerChannel
// is always set to sampleRate/100, whatever len(samples) is, so the result
// matches the AudioFrame invariant only when samples holds exactly 10 ms
// of audio for numChannels channels.
func FrameFromSamples(samples []int16, sampleRate, numChannels int, timestamp time.Duration) *AudioFrame {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s & 0xff)
		data[i*2+1] = byte(s >> 8 & 0xff)
	}
	return &AudioFrame{
		Data:              data,
		SampleRate:        sampleRate,
		SamplesPerChannel: sampleRate / 100,
		NumChannels:       numChannels,
		Timestamp:         timestamp,
	}
}
