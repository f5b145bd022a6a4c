package chime

import "testing"

func TestSamples(t *testing.T) {
	for _, tt := range []struct {
		cue  Cue
		want int
	}{
		{Start, int(sampleRate * 0.2)},
		{Stop, int(sampleRate * 0.2)},
		{Error, 2*int(sampleRate*0.08) + int(sampleRate*0.05)},
		{Attention, 3*int(sampleRate*0.25) + 2*int(sampleRate*0.08)},
	} {
		if got := len(Samples(tt.cue)); got != tt.want {
			t.Errorf("cue %d: %d samples, want %d", tt.cue, got, tt.want)
		}
	}
	if Samples(Cue(99)) != nil {
		t.Error("unknown cue has samples")
	}
}

func TestSynthDecays(t *testing.T) {
	s := synth(1000, 0.2, 0.5, 40)
	if s[0] != 0 {
		t.Errorf("first sample = %d, want 0", s[0])
	}
	peak := func(part []int16) int16 {
		var m int16
		for _, v := range part {
			if v < 0 {
				v = -v
			}
			m = max(m, v)
		}
		return m
	}
	head, tail := peak(s[:1000]), peak(s[len(s)-1000:])
	if head <= tail || head > int16(32767/2)+1 {
		t.Errorf("head peak %d, tail peak %d", head, tail)
	}
}

func TestDisable(t *testing.T) {
	Disable()
	Play(Start)
	if !disabled.Load() {
		t.Fatal("not disabled")
	}
}
