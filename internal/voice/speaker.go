package voice

import (
	"context"
	"log/slog"
	"time"

	"github.com/ayane-dev/zombiewatch-go/internal/conf"
	"github.com/ayane-dev/zombiewatch-go/internal/logging"
)

// Utterance is a synthesized clip ready for playback.
type Utterance struct {
	Text     string
	Audio    []byte
	Duration time.Duration
}

// Speaker ties the synthesis client and the audio player together. Prepare
// and Play are split so callers can register the estimated playback window
// before audio starts.
type Speaker struct {
	client  *Client
	player  Player
	enabled bool
	log     *slog.Logger
}

// NewSpeaker creates a speaker. A nil player disables playback but still
// allows synthesis (used by tests and dry runs).
func NewSpeaker(settings *conf.VoiceSettings, player Player) *Speaker {
	return &Speaker{
		client:  NewClient(settings),
		player:  player,
		enabled: settings.Enabled,
		log:     logging.ForService("voice"),
	}
}

// Enabled reports whether speech output is configured on.
func (s *Speaker) Enabled() bool { return s.enabled }

// Client returns the underlying synthesis client.
func (s *Speaker) Client() *Client { return s.client }

// Prepare synthesizes text with the severity's style preset and estimates
// its playback duration. A nil utterance with nil error means the text was
// suppressed as a duplicate.
func (s *Speaker) Prepare(ctx context.Context, text, severity string) (*Utterance, error) {
	if !s.enabled {
		return nil, nil
	}

	if s.client.IsDuplicate(text) {
		s.log.Debug("duplicate utterance suppressed", "text", text)
		return nil, nil
	}

	audio, err := s.client.Synthesize(ctx, text, PresetFor(severity))
	if err != nil {
		return nil, err
	}

	duration, err := EstimateDuration(audio)
	if err != nil {
		s.log.Warn("could not estimate clip duration", "error", err)
		duration = 0
	}

	return &Utterance{Text: text, Audio: audio, Duration: duration}, nil
}

// Play blocks until the utterance finishes playing.
func (s *Speaker) Play(ctx context.Context, u *Utterance) error {
	if u == nil || s.player == nil {
		return nil
	}
	return s.player.Play(ctx, u.Audio)
}
