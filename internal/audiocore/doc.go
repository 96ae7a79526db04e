// Package audiocore is the real-time routing core.
//
// Captured frames from each input device are fanned out, with the device
// gain applied, into one lock-free ring per route. Each output device mixes
// the rings of the routes that target it, converts channel layouts and clamps
// the sum once. The Watchdog binds devices at startup, detects devices whose
// callbacks stop and rebinds them; the KeepAlive loop drives it on a timer.
//
// The OS audio layer is reached only through the Backend, Stream, CaptureSink
// and RenderSource interfaces, so the whole pipeline can be exercised with
// synthetic callbacks.
package audiocore
