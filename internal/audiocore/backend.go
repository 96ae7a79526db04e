package audiocore

import (
	"context"

	"github.com/tphakala/audiorouter/internal/events"
)

// DeviceInfo is one device reported by the OS.
type DeviceInfo struct {
	SystemName string
	Kind       Kind
	ID         string
	Handle     any // backend specific
}

// Enumerator lists the devices currently present.
type Enumerator interface {
	ListDevices(ctx context.Context) ([]DeviceInfo, error)
}

// StreamFormat is the negotiated layout of an open stream.
type StreamFormat struct {
	Channels   int
	SampleRate int
}

// Stream is an open OS audio stream. Close must not return while the
// stream's callback is still running.
type Stream interface {
	Format() StreamFormat
	Start() error
	Close() error
}

// CaptureSink receives interleaved captured samples on the audio thread.
type CaptureSink interface {
	OnCapture(samples []float32, channels, sampleRate int)
}

// RenderSource fills an interleaved output buffer on the audio thread and
// returns the number of frames produced.
type RenderSource interface {
	OnRender(out []float32, channels int) int
}

// Backend opens streams on enumerated devices.
type Backend interface {
	Enumerator
	OpenCapture(info DeviceInfo, bufferFrames int, sink CaptureSink) (Stream, error)
	OpenRender(info DeviceInfo, bufferFrames int, source RenderSource) (Stream, error)
}

// EventSink receives telemetry events. Publish is never called from an
// audio callback.
type EventSink interface {
	Publish(ev events.Event)
}

type nopSink struct{}

func (nopSink) Publish(events.Event) {}
