// Package chime plays short audible cues so that a user who cannot watch
// the screen knows when recording starts and stops.
package chime

import (
	"math"
	"sync"
	"sync/atomic"
)

type Cue int

const (
	Start Cue = iota
	Stop
	// Attention marks a result that needs a caregiver's attention.
	Attention
	Error
)

const sampleRate = 44100

type tone struct {
	freq, volume, decay float64
	duration            float64
	repeat              int
	gap                 float64
}

var tones = map[Cue]tone{
	Start:     {freq: 1200, volume: 0.5, decay: 60, duration: 0.2, repeat: 1},
	Stop:      {freq: 900, volume: 0.5, decay: 40, duration: 0.2, repeat: 1},
	Attention: {freq: 660, volume: 0.6, decay: 12, duration: 0.25, repeat: 3, gap: 0.08},
	Error:     {freq: 350, volume: 0.6, decay: 30, duration: 0.08, repeat: 2, gap: 0.05},
}

var (
	disabled atomic.Bool
	cacheMu  sync.Mutex
	cache    = map[Cue][]int16{}
)

// Disable silences every cue. The headless host calls it.
func Disable() { disabled.Store(true) }

// Play emits c without blocking. Playback errors are ignored.
func Play(c Cue) {
	if disabled.Load() {
		return
	}
	samples := Samples(c)
	if len(samples) == 0 {
		return
	}
	go play(samples)
}

// Samples returns the mono 16-bit waveform for c at 44.1 kHz.
func Samples(c Cue) []int16 {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if s, ok := cache[c]; ok {
		return s
	}
	t, ok := tones[c]
	if !ok {
		return nil
	}
	s := t.render()
	cache[c] = s
	return s
}

func (t tone) render() []int16 {
	tick := synth(t.freq, t.duration, t.volume, t.decay)
	gap := make([]int16, int(sampleRate*t.gap))
	var out []int16
	for i := 0; i < t.repeat; i++ {
		if i > 0 {
			out = append(out, gap...)
		}
		out = append(out, tick...)
	}
	return out
}

// synth is a sine with an exponential decay envelope.
func synth(freq, duration, volume, decay float64) []int16 {
	n := int(sampleRate * duration)
	out := make([]int16, n)
	for i := range out {
		t := float64(i) / sampleRate
		out[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * math.Exp(-t*decay))
	}
	return out
}
