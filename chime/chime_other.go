//go:build !linux

package chime

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

var (
	initOnce sync.Once
	mctx     *malgo.AllocatedContext
	playMu   sync.Mutex
	device   *malgo.Device

	// read by the device callback
	current atomic.Pointer[[]byte]
	pos     atomic.Uint32
)

func open() {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return
	}
	mctx = ctx
	if err := initDevice(); err != nil {
		mctx.Uninit()
		mctx = nil
	}
}

func initDevice() error {
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = sampleRate
	d, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return err
	}
	device = d
	return nil
}

func onData(out, _ []byte, frames uint32) {
	clear(out)
	buf := current.Load()
	if buf == nil {
		return
	}
	p := pos.Load()
	if int(p) >= len(*buf) {
		current.Store(nil)
		return
	}
	n := copy(out[:frames*2], (*buf)[p:])
	pos.Store(p + uint32(n))
}

func play(samples []int16) {
	initOnce.Do(open)
	if mctx == nil {
		return
	}
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}

	playMu.Lock()
	defer playMu.Unlock()
	device.Stop()
	pos.Store(0)
	current.Store(&buf)
	if err := device.Start(); err != nil {
		// devices go stale across sleep/wake
		device.Uninit()
		if initDevice() != nil || device.Start() != nil {
			current.Store(nil)
		}
	}
}
