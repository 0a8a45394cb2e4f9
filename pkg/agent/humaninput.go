package agent

import (
	"context"
	"log/slog"
	"sync"

	lksdk "github.com/livekit/server-sdk-go"
	"github.com/pion/webrtc/v3"

	"github.com/duplexvox/voicecore/pkg/job"
	"github.com/duplexvox/voicecore/pkg/rtc"
)

// StartInRoom attaches the session's microphone input to a participant's
// audio track in room — the given identity if non-empty, otherwise the
// first remote participant whose audio track is subscribed — decodes it
// with rtc.HumanInput, and then runs Start as usual (spec.md §6's
// "start(room, participant?)" surface).
func (a *Agent) StartInRoom(ctx context.Context, j *job.Job, room *job.Room, participantIdentity string) error {
	mic := make(chan *rtc.AudioFrame, 250)
	a.cfg.MicIn = mic

	var mu sync.Mutex
	attached := false

	room.OnAudioTrack(func(track *webrtc.TrackRemote, participant *lksdk.RemoteParticipant) {
		mu.Lock()
		if attached || (participantIdentity != "" && participant.Identity() != participantIdentity) {
			mu.Unlock()
			return
		}
		attached = true
		mu.Unlock()

		slog.Info("agent: attaching human input", slog.String("participant", participant.Identity()))

		input, err := rtc.NewHumanInput(ctx, track)
		if err != nil {
			slog.Error("agent: creating human input", slog.Any("error", err))
			close(mic)
			return
		}
		go func() {
			defer close(mic)
			for frame := range input.Frames() {
				select {
				case mic <- frame:
				case <-ctx.Done():
					return
				}
			}
		}()
	})

	return a.Start(ctx, j)
}
