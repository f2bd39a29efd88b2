// Package visual renders per-frame amplitude bars from the inbound
// audio of the active call.
package visual

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/core"
)

// Bins is the number of amplitude bars per frame.
const Bins = 128

// Visualizer reads the latest G.711 µ-law payload once per display
// frame and pushes amplitude levels to the sink. The loop checks the
// liveness probe on every frame and terminates itself the moment the
// session leaves the established state; nothing cancels it from
// outside.
type Visualizer struct {
	sink  core.VisualSink
	alive func() bool

	FrameEvery time.Duration

	mu      sync.Mutex
	running bool
}

func NewVisualizer(sink core.VisualSink, alive func() bool) *Visualizer {
	return &Visualizer{
		sink:       sink,
		alive:      alive,
		FrameEvery: 33 * time.Millisecond,
	}
}

// Start launches the render loop; a second Start while one is running
// is a no-op, which makes the media binding idempotent.
func (v *Visualizer) Start(src core.MediaSource) {
	v.mu.Lock()
	if v.running {
		v.mu.Unlock()
		return
	}
	v.running = true
	v.mu.Unlock()

	go v.loop(src)
}

// Running reports whether a render loop is active.
func (v *Visualizer) Running() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running
}

func (v *Visualizer) loop(src core.MediaSource) {
	defer func() {
		v.mu.Lock()
		v.running = false
		v.mu.Unlock()
		log.Debug().Str("module", "app.visual").Msg("render loop stopped")
	}()

	t := time.NewTicker(v.FrameEvery)
	defer t.Stop()
	for range t.C {
		if !v.alive() {
			return
		}
		payload, ok := src.LatestPayload()
		if !ok {
			continue
		}
		v.sink.RenderFrame(Levels(payload))
	}
}

// Levels folds a µ-law payload into Bins amplitude values in 0..255.
// Each bin holds the peak magnitude of its slice of samples.
func Levels(payload []byte) []byte {
	out := make([]byte, Bins)
	if len(payload) == 0 {
		return out
	}
	per := len(payload) / Bins
	if per == 0 {
		per = 1
	}
	for i := 0; i < Bins; i++ {
		start := i * per
		if start >= len(payload) {
			break
		}
		end := start + per
		if end > len(payload) {
			end = len(payload)
		}
		var peak int
		for _, b := range payload[start:end] {
			if m := mulawMagnitude(b); m > peak {
				peak = m
			}
		}
		// Peak magnitude is <= 32124; scale into a byte.
		out[i] = byte(peak >> 7)
	}
	return out
}

// mulawMagnitude decodes the magnitude of one G.711 µ-law sample.
func mulawMagnitude(b byte) int {
	u := ^b
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F
	return ((int(mantissa)<<3 + 0x84) << exponent) - 0x84
}
