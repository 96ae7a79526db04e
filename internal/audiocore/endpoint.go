package audiocore

import (
	"sync/atomic"
)

// renderScratchSamples bounds the per-output scratch used to pull one route's
// samples before conversion. Larger callbacks are processed in chunks.
const renderScratchSamples = 8192

// DeviceEndpoint is one configured device and, once bound, its OS stream.
// It implements CaptureSink for inputs and RenderSource for outputs.
type DeviceEndpoint struct {
	cfg    DeviceConfig
	routes []*route // fed by an input or mixed into an output; fixed after construction

	state      atomic.Int32
	activity   atomic.Uint64 // callback invocations
	channels   atomic.Int32
	sampleRate atomic.Int32

	mixRatio  float32
	sampleMin float32
	sampleMax float32
	scratch   []float32 // render side only, owned by the audio thread

	// guarded by Engine.mu
	stream  Stream
	info    DeviceInfo
	started bool
}

func newEndpoint(cfg DeviceConfig, audio AudioSettings) *DeviceEndpoint {
	ep := &DeviceEndpoint{
		cfg:       cfg,
		mixRatio:  audio.StereoToMonoMixRatio,
		sampleMin: audio.SampleMin,
		sampleMax: audio.SampleMax,
	}
	if cfg.Kind == KindOutput {
		ep.scratch = make([]float32, renderScratchSamples)
	}
	return ep
}

// Alias returns the configured device alias.
func (ep *DeviceEndpoint) Alias() string { return ep.cfg.Alias }

// State returns the current watchdog state.
func (ep *DeviceEndpoint) State() DeviceState { return DeviceState(ep.state.Load()) }

// Format returns the negotiated stream format, zero until bound.
func (ep *DeviceEndpoint) Format() StreamFormat {
	return StreamFormat{
		Channels:   int(ep.channels.Load()),
		SampleRate: int(ep.sampleRate.Load()),
	}
}

// Activity returns a counter that advances on every callback.
func (ep *DeviceEndpoint) Activity() uint64 { return ep.activity.Load() }

// OnCapture fans captured frames into the ring of every active route fed by
// this device, applying the device gain. Only whole frames are written; any
// remainder is counted as overflow.
func (ep *DeviceEndpoint) OnCapture(samples []float32, channels, _ int) {
	ep.activity.Add(1)
	if ep.State() != DeviceBound || channels <= 0 {
		return
	}

	for _, r := range ep.routes {
		if r.loadState() != RouteActive {
			continue
		}
		rb := r.buf.Load()
		if rb == nil || rb.channels != channels {
			continue
		}

		free := rb.ring.Free()
		n := min(len(samples), free-free%channels)
		n -= n % channels
		written := rb.ring.writeScaled(samples[:n], r.gain)
		if dropped := len(samples) - written; dropped > 0 {
			r.overflowSamples.Add(uint64(dropped))
			r.overflowEvents.Add(1)
		}
	}
}

// OnRender mixes every active route targeting this device into out and
// clamps the result once. Missing data is rendered as silence.
func (ep *DeviceEndpoint) OnRender(out []float32, channels int) int {
	ep.activity.Add(1)
	clear(out)
	if channels <= 0 {
		return 0
	}
	frames := len(out) / channels
	if ep.State() != DeviceBound {
		return frames
	}

	out = out[:frames*channels]
	for _, r := range ep.routes {
		if r.loadState() != RouteActive {
			continue
		}
		if rb := r.buf.Load(); rb != nil {
			ep.pull(r, rb, out, frames, channels)
		}
	}
	clampSamples(out, ep.sampleMin, ep.sampleMax)
	return frames
}

// pull reads frames of one route through the scratch buffer and adds them
// into out. A short read is zero-filled and counted as one underrun.
func (ep *DeviceEndpoint) pull(r *route, rb *routeBuffer, out []float32, frames, outCh int) {
	inCh := rb.channels
	if inCh <= 0 {
		return
	}
	step := len(ep.scratch) / inCh
	if step == 0 {
		return
	}

	var short int
	for done := 0; done < frames; {
		chunk := min(frames-done, step)
		in := ep.scratch[:chunk*inCh]
		if got := rb.ring.Read(in); got < len(in) {
			clear(in[got:])
			short += len(in) - got
		}
		mixInto(out[done*outCh:(done+chunk)*outCh], outCh, in, inCh, chunk, ep.mixRatio)
		done += chunk
	}

	if short > 0 {
		r.underrunSamples.Add(uint64(short))
		r.underrunEvents.Add(1)
	}
}
