package voice

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/ayane-dev/zombiewatch-go/internal/errors"
)

// Player plays synthesized WAV audio. Play blocks until playback completes
// or the context is cancelled.
type Player interface {
	Play(ctx context.Context, wavData []byte) error
}

// EstimateDuration reads the WAV header and returns the clip duration.
func EstimateDuration(wavData []byte) (time.Duration, error) {
	decoder := wav.NewDecoder(bytes.NewReader(wavData))
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return 0, errors.Newf("invalid wav data").
			Component("voice").
			Category(errors.CategoryPlayback).
			Build()
	}
	duration, err := decoder.Duration()
	if err != nil {
		return 0, errors.New(err).
			Component("voice").
			Category(errors.CategoryPlayback).
			Build()
	}
	return duration, nil
}

// MalgoPlayer plays audio through the default output device.
type MalgoPlayer struct{}

// NewMalgoPlayer returns a player backed by the OS audio API.
func NewMalgoPlayer() *MalgoPlayer {
	return &MalgoPlayer{}
}

// Play decodes the WAV data and streams it to the default playback device.
func (p *MalgoPlayer) Play(ctx context.Context, wavData []byte) error {
	decoder := wav.NewDecoder(bytes.NewReader(wavData))
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return playbackError(fmt.Errorf("invalid wav data"))
	}

	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		return playbackError(err)
	}

	samples := toS16LE(pcm, int(decoder.BitDepth))

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return playbackError(err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(pcm.Format.NumChannels)
	deviceConfig.SampleRate = uint32(pcm.Format.SampleRate)

	done := make(chan struct{})
	offset := 0
	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			n := copy(output, samples[offset:])
			offset += n
			if offset >= len(samples) {
				select {
				case <-done:
				default:
					close(done)
				}
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		return playbackError(err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return playbackError(err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// toS16LE converts decoded PCM samples to 16-bit little-endian bytes.
func toS16LE(buf *audio.IntBuffer, bitDepth int) []byte {
	data := buf.Data
	out := make([]byte, len(data)*2)
	for i, sample := range data {
		v := sample
		switch bitDepth {
		case 8:
			v = (v - 128) << 8
		case 24:
			v >>= 8
		case 32:
			v >>= 16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

func playbackError(err error) error {
	return errors.New(err).
		Component("voice").
		Category(errors.CategoryPlayback).
		Build()
}
