package audio

import (
	"os"
	"sync"
	"time"

	"voicediary/encoder"
)

const fakeChunkFrames = 1024

// FakeContext replays PCM instead of opening a microphone. In realtime mode
// chunks are paced at the capture sample rate and silence follows the clip;
// otherwise the clip is delivered synchronously from Start.
type FakeContext struct {
	pcm      []byte
	realtime bool

	// OpenErr, when set, is returned by NewCapture. StartErr by Start.
	OpenErr  error
	StartErr error
}

func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return &FakeContext{pcm: data, realtime: realtime}, nil
}

func NewFakeContextPCM(pcm []byte, realtime bool) *FakeContext {
	return &FakeContext{pcm: pcm, realtime: realtime}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "Fake Microphone"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	return &FakeCapture{pcm: f.pcm, realtime: f.realtime, startErr: f.StartErr}, nil
}

type FakeCapture struct {
	pcm      []byte
	realtime bool
	startErr error

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) chunk(pos int) ([]byte, int) {
	end := min(pos+fakeChunkFrames*2, len(f.pcm))
	out := make([]byte, end-pos)
	copy(out, f.pcm[pos:end])
	return out, end
}

func (f *FakeCapture) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	if !f.realtime {
		if cb := f.callback(); cb != nil {
			for pos := 0; pos < len(f.pcm); {
				var data []byte
				data, pos = f.chunk(pos)
				cb(data, uint32(len(data)/2))
			}
		}
		close(f.feedDone)
		return nil
	}

	interval := time.Duration(fakeChunkFrames) * time.Second / time.Duration(encoder.SampleRate)
	go func() {
		defer close(f.feedDone)
		silence := make([]byte, fakeChunkFrames*2)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		pos := 0
		for {
			select {
			case <-f.stopCh:
				return
			case <-ticker.C:
			}
			cb := f.callback()
			if cb == nil {
				continue
			}
			if pos < len(f.pcm) {
				var data []byte
				data, pos = f.chunk(pos)
				cb(data, uint32(len(data)/2))
			} else {
				cb(silence, fakeChunkFrames)
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
}

func (f *FakeCapture) Close() { f.Stop() }
