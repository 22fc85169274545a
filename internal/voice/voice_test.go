package voice

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayane-dev/zombiewatch-go/internal/conf"
)

func testVoiceSettings() *conf.VoiceSettings {
	return &conf.VoiceSettings{
		Enabled:         true,
		Host:            "localhost",
		Port:            50021,
		SpeakerID:       3,
		RequestTimeout:  5,
		CacheTTLMinutes: 30,
		DuplicateWindow: 5,
	}
}

// testWAV builds a canonical 16-bit mono PCM file with the given number of
// samples at 8 kHz.
func testWAV(samples int) []byte {
	const sampleRate = 8000
	dataLen := samples * 2

	buf := make([]byte, 0, 44+dataLen)
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataLen))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, 1) // mono
	buf = binary.LittleEndian.AppendUint32(buf, sampleRate)
	buf = binary.LittleEndian.AppendUint32(buf, sampleRate*2)
	buf = binary.LittleEndian.AppendUint16(buf, 2)
	buf = binary.LittleEndian.AppendUint16(buf, 16)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataLen))
	buf = append(buf, make([]byte, dataLen)...)
	return buf
}

func activateMockEngine(t *testing.T, c *Client, wavData []byte, synthCalls *atomic.Int32) {
	t.Helper()
	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodPost, `=~^http://localhost:50021/audio_query`,
		func(*http.Request) (*http.Response, error) {
			query := map[string]any{"speedScale": 1.0, "outputSamplingRate": 8000}
			return httpmock.NewJsonResponse(http.StatusOK, query)
		})

	httpmock.RegisterResponder(http.MethodPost, `=~^http://localhost:50021/synthesis`,
		func(req *http.Request) (*http.Response, error) {
			if synthCalls != nil {
				synthCalls.Add(1)
			}
			var query map[string]any
			if err := json.NewDecoder(req.Body).Decode(&query); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
			}
			return httpmock.NewBytesResponse(http.StatusOK, wavData), nil
		})
}

func TestClient_SynthesizeAppliesPreset(t *testing.T) {
	c := NewClient(testVoiceSettings())
	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodPost, `=~^http://localhost:50021/audio_query`,
		func(*http.Request) (*http.Response, error) {
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"speedScale": 1.0})
		})

	var gotQuery map[string]any
	httpmock.RegisterResponder(http.MethodPost, `=~^http://localhost:50021/synthesis`,
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, json.NewDecoder(req.Body).Decode(&gotQuery))
			return httpmock.NewBytesResponse(http.StatusOK, testWAV(100)), nil
		})

	_, err := c.Synthesize(context.Background(), "behind you", PresetFor("many"))
	require.NoError(t, err)

	assert.InDelta(t, 1.2, gotQuery["speedScale"], 1e-9)
	assert.InDelta(t, 1.3, gotQuery["intonationScale"], 1e-9)
}

func TestClient_SynthesizeCachesRenderedAudio(t *testing.T) {
	c := NewClient(testVoiceSettings())
	var synthCalls atomic.Int32
	activateMockEngine(t, c, testWAV(100), &synthCalls)

	ctx := context.Background()
	first, err := c.Synthesize(ctx, "threat ahead", PresetFor("few"))
	require.NoError(t, err)
	second, err := c.Synthesize(ctx, "threat ahead", PresetFor("few"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), synthCalls.Load(), "second request served from cache")
}

func TestClient_CacheKeyVariesByPreset(t *testing.T) {
	c := NewClient(testVoiceSettings())
	var synthCalls atomic.Int32
	activateMockEngine(t, c, testWAV(100), &synthCalls)

	ctx := context.Background()
	_, err := c.Synthesize(ctx, "threat ahead", PresetFor("few"))
	require.NoError(t, err)
	_, err = c.Synthesize(ctx, "threat ahead", PresetFor("many"))
	require.NoError(t, err)

	assert.Equal(t, int32(2), synthCalls.Load())
}

func TestClient_SynthesisErrorIsReported(t *testing.T) {
	c := NewClient(testVoiceSettings())
	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodPost, `=~^http://localhost:50021/audio_query`,
		httpmock.NewStringResponder(http.StatusInternalServerError, "engine down"))

	_, err := c.Synthesize(context.Background(), "hello", defaultPreset)
	assert.Error(t, err)
}

func TestClient_DuplicateSuppressionWindow(t *testing.T) {
	t.Parallel()

	c := NewClient(testVoiceSettings())
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	current := base
	c.SetClock(func() time.Time { return current })

	assert.False(t, c.IsDuplicate("behind you"), "first utterance is never a duplicate")
	current = base.Add(2 * time.Second)
	assert.True(t, c.IsDuplicate("behind you"), "same text inside the 5s window")
	current = base.Add(8 * time.Second)
	assert.False(t, c.IsDuplicate("behind you"), "window elapsed")
	assert.False(t, c.IsDuplicate("threat ahead"), "different text resets tracking")
}

func TestEstimateDuration(t *testing.T) {
	t.Parallel()

	// 8000 samples at 8 kHz mono is exactly one second.
	d, err := EstimateDuration(testWAV(8000))
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	_, err = EstimateDuration([]byte("not a wav"))
	assert.Error(t, err)
}

func TestPresetFor_FallsBackToNeutral(t *testing.T) {
	t.Parallel()

	assert.Equal(t, defaultPreset, PresetFor("unknown"))
	assert.InDelta(t, 1.2, PresetFor("many").SpeedScale, 1e-9)
}

func TestToS16LE_BitDepthConversion(t *testing.T) {
	t.Parallel()

	out := toS16LE(&audio.IntBuffer{Data: []int{0, 16384, -16384}}, 16)
	require.Len(t, out, 6)
	assert.Equal(t, int16(16384), int16(binary.LittleEndian.Uint16(out[2:4])))

	// 8-bit unsigned midpoint maps to silence.
	out = toS16LE(&audio.IntBuffer{Data: []int{128}}, 8)
	assert.Equal(t, int16(0), int16(binary.LittleEndian.Uint16(out)))
}

func TestSpeaker_PrepareSuppressesDuplicates(t *testing.T) {
	settings := testVoiceSettings()
	speaker := NewSpeaker(settings, nil)
	activateMockEngine(t, speaker.Client(), testWAV(8000), nil)

	ctx := context.Background()
	u, err := speaker.Prepare(ctx, "behind you", "many")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, time.Second, u.Duration)

	dup, err := speaker.Prepare(ctx, "behind you", "many")
	require.NoError(t, err)
	assert.Nil(t, dup, "second identical utterance suppressed")
}

func TestSpeaker_DisabledReturnsNil(t *testing.T) {
	t.Parallel()

	settings := testVoiceSettings()
	settings.Enabled = false
	speaker := NewSpeaker(settings, nil)

	u, err := speaker.Prepare(context.Background(), "anything", "few")
	require.NoError(t, err)
	assert.Nil(t, u)
}
