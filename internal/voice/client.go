// Package voice synthesizes and plays alert speech through a local
// VOICEVOX-compatible engine. Synthesis is a two-step HTTP exchange: an audio
// query is generated for the text, tuned with a style preset, then rendered
// to WAV. Rendered audio is cached so repeated alert phrases skip the engine.
package voice

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/ayane-dev/zombiewatch-go/internal/conf"
	"github.com/ayane-dev/zombiewatch-go/internal/errors"
	"github.com/ayane-dev/zombiewatch-go/internal/logging"
)

const defaultCacheTTL = 30 * time.Minute

// Client talks to a VOICEVOX-compatible speech engine.
type Client struct {
	baseURL    string
	speakerID  int
	httpClient *http.Client

	cache *cache.Cache

	mu              sync.Mutex
	lastUtterance   string
	lastUtteredAt   time.Time
	duplicateWindow time.Duration

	now func() time.Time
	log *slog.Logger
}

// NewClient creates a speech client from voice settings.
func NewClient(settings *conf.VoiceSettings) *Client {
	timeout := 10 * time.Second
	if settings.RequestTimeout > 0 {
		timeout = time.Duration(settings.RequestTimeout) * time.Second
	}

	ttl := defaultCacheTTL
	if settings.CacheTTLMinutes > 0 {
		ttl = time.Duration(settings.CacheTTLMinutes) * time.Minute
	}

	return &Client{
		baseURL:         fmt.Sprintf("http://%s:%d", settings.Host, settings.Port),
		speakerID:       settings.SpeakerID,
		httpClient:      &http.Client{Timeout: timeout},
		cache:           cache.New(ttl, 10*time.Minute),
		duplicateWindow: time.Duration(settings.DuplicateWindow * float64(time.Second)),
		now:             time.Now,
		log:             logging.ForService("voice"),
	}
}

// SetClock replaces the time source. Used by tests.
func (c *Client) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// IsDuplicate reports whether the same text was synthesized within the
// duplicate-suppression window, and records the utterance if not.
func (c *Client) IsDuplicate(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if text == c.lastUtterance && c.duplicateWindow > 0 && now.Sub(c.lastUtteredAt) < c.duplicateWindow {
		return true
	}
	c.lastUtterance = text
	c.lastUtteredAt = now
	return false
}

// Synthesize renders text to WAV audio with the given style preset. Results
// are cached by text, speaker and preset.
func (c *Client) Synthesize(ctx context.Context, text string, preset Preset) ([]byte, error) {
	key := cacheKey(text, c.speakerID, preset)
	if cached, found := c.cache.Get(key); found {
		c.log.Debug("speech cache hit", "text", text)
		return cached.([]byte), nil
	}

	query, err := c.audioQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	applyPreset(query, preset)

	wav, err := c.synthesis(ctx, query)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, wav, cache.DefaultExpiration)
	return wav, nil
}

// audioQuery asks the engine to build a synthesis query for the text.
func (c *Client) audioQuery(ctx context.Context, text string) (map[string]any, error) {
	endpoint := fmt.Sprintf("%s/audio_query?%s", c.baseURL, url.Values{
		"text":    {text},
		"speaker": {fmt.Sprint(c.speakerID)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, http.NoBody)
	if err != nil {
		return nil, speechError(err, "audio_query")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, speechError(err, "audio_query")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, speechError(fmt.Errorf("audio query returned status %d", resp.StatusCode), "audio_query")
	}

	var query map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&query); err != nil {
		return nil, speechError(err, "audio_query")
	}
	return query, nil
}

// synthesis renders a prepared audio query to WAV bytes.
func (c *Client) synthesis(ctx context.Context, query map[string]any) ([]byte, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, speechError(err, "synthesis")
	}

	endpoint := fmt.Sprintf("%s/synthesis?%s", c.baseURL, url.Values{
		"speaker": {fmt.Sprint(c.speakerID)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, speechError(err, "synthesis")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, speechError(err, "synthesis")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, speechError(fmt.Errorf("synthesis returned status %d", resp.StatusCode), "synthesis")
	}

	return io.ReadAll(resp.Body)
}

// applyPreset overwrites the query's style parameters.
func applyPreset(query map[string]any, preset Preset) {
	query["speedScale"] = preset.SpeedScale
	query["pitchScale"] = preset.PitchScale
	query["intonationScale"] = preset.IntonationScale
	query["volumeScale"] = preset.VolumeScale
}

func cacheKey(text string, speakerID int, preset Preset) string {
	h := sha1.Sum(fmt.Appendf(nil, "%s|%d|%.2f|%.2f|%.2f|%.2f",
		text, speakerID, preset.SpeedScale, preset.PitchScale, preset.IntonationScale, preset.VolumeScale))
	return hex.EncodeToString(h[:])
}

func speechError(err error, operation string) error {
	return errors.New(err).
		Component("voice").
		Category(errors.CategorySpeech).
		Context("operation", operation).
		Build()
}
