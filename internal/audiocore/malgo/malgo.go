// Package malgo implements the audiocore Backend on top of miniaudio.
package malgo

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/audiorouter/internal/audiocore"
	"github.com/tphakala/audiorouter/internal/errors"
	"github.com/tphakala/audiorouter/internal/logging"
)

// Backend enumerates devices and opens f32 streams through one miniaudio context.
type Backend struct {
	ctx    *malgo.AllocatedContext
	logger *slog.Logger

	// miniaudio enumeration is not reentrant
	mu sync.Mutex
}

// New initializes a miniaudio context for the platform backend.
func New(logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = logging.ForService("audiocore")
	}
	logger = logger.With("component", "malgo")

	backend, err := getBackendForPlatform()
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, func(message string) {
		logger.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudio).
			Context("operation", "init_context").
			Build()
	}

	return &Backend{ctx: ctx, logger: logger}, nil
}

// Close releases the miniaudio context. Every stream must be closed first.
func (b *Backend) Close() error {
	err := b.ctx.Uninit()
	b.ctx.Free()
	return err
}

// ListDevices returns capture devices followed by playback devices.
func (b *Backend) ListDevices(ctx context.Context) ([]audiocore.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	captures, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudio).
			Context("operation", "enumerate_capture_devices").
			Build()
	}
	playbacks, err := b.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudio).
			Context("operation", "enumerate_playback_devices").
			Build()
	}

	devices := convertInfos(captures, audiocore.KindInput)
	return append(devices, convertInfos(playbacks, audiocore.KindOutput)...), nil
}

// OpenCapture opens a capture stream at the device's native channel count and rate.
func (b *Backend) OpenCapture(info audiocore.DeviceInfo, bufferFrames int, sink audiocore.CaptureSink) (audiocore.Stream, error) {
	s := &stream{name: info.SystemName, logger: b.logger}
	cb := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			samples := samplesFromBytes(in)
			if len(samples) == 0 {
				return
			}
			sink.OnCapture(samples, int(s.channels.Load()), int(s.rate.Load()))
		},
		Stop: s.onStop,
	}
	return b.open(s, info, malgo.Capture, bufferFrames, cb)
}

// OpenRender opens a playback stream at the device's native channel count and rate.
func (b *Backend) OpenRender(info audiocore.DeviceInfo, bufferFrames int, source audiocore.RenderSource) (audiocore.Stream, error) {
	s := &stream{name: info.SystemName, logger: b.logger}
	cb := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, _ uint32) {
			samples := samplesFromBytes(out)
			if len(samples) == 0 {
				return
			}
			source.OnRender(samples, int(s.channels.Load()))
		},
		Stop: s.onStop,
	}
	return b.open(s, info, malgo.Playback, bufferFrames, cb)
}

func (b *Backend) open(s *stream, info audiocore.DeviceInfo, kind malgo.DeviceType, bufferFrames int, cb malgo.DeviceCallbacks) (audiocore.Stream, error) {
	devInfo, ok := info.Handle.(malgo.DeviceInfo)
	if !ok {
		return nil, errors.Newf("device %q was not enumerated by this backend", info.SystemName).
			Component("audiocore").
			Category(errors.CategoryAudio).
			Build()
	}
	s.id = devInfo.ID

	deviceConfig := malgo.DefaultDeviceConfig(kind)
	deviceConfig.PeriodSizeInFrames = uint32(bufferFrames)
	deviceConfig.Alsa.NoMMap = 1
	if kind == malgo.Capture {
		deviceConfig.Capture.Format = malgo.FormatF32
		deviceConfig.Capture.DeviceID = s.id.Pointer()
	} else {
		deviceConfig.Playback.Format = malgo.FormatF32
		deviceConfig.Playback.DeviceID = s.id.Pointer()
	}

	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, cb)
	if err != nil {
		return nil, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudio).
			Context("device_name", info.SystemName).
			Context("operation", "init_device").
			Build()
	}
	s.device = device

	channels := device.CaptureChannels()
	if kind == malgo.Playback {
		channels = device.PlaybackChannels()
	}
	s.channels.Store(int32(channels))
	s.rate.Store(int32(device.SampleRate()))

	b.logger.Debug("opened device",
		"device_name", info.SystemName,
		"channels", channels,
		"sample_rate", device.SampleRate(),
		"period_frames", bufferFrames)
	return s, nil
}

// stream is one initialized miniaudio device.
type stream struct {
	name   string
	id     malgo.DeviceID
	device *malgo.Device
	logger *slog.Logger

	channels atomic.Int32
	rate     atomic.Int32

	closeOnce sync.Once
	closing   atomic.Bool
}

func (s *stream) Format() audiocore.StreamFormat {
	return audiocore.StreamFormat{
		Channels:   int(s.channels.Load()),
		SampleRate: int(s.rate.Load()),
	}
}

func (s *stream) Start() error {
	if err := s.device.Start(); err != nil {
		return errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudio).
			Context("device_name", s.name).
			Context("operation", "start_device").
			Build()
	}
	return nil
}

// Close stops and uninitializes the device. miniaudio waits for the data
// callback to return before ma_device_uninit completes.
func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		if s.device.IsStarted() {
			err = s.device.Stop()
		}
		s.device.Uninit()
	})
	return err
}

func (s *stream) onStop() {
	if !s.closing.Load() {
		s.logger.Warn("device stopped unexpectedly", "device_name", s.name)
	}
}
