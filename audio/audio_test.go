package audio

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

func TestClassify(t *testing.T) {
	for _, tt := range []struct {
		err  error
		want error
	}{
		{errors.New("Access denied by policy"), ErrPermissionDenied},
		{errors.New("NotAllowedError: permission dismissed"), ErrPermissionDenied},
		{errors.New("connection refused"), ErrDeviceUnavailable},
		{ErrPermissionDenied, ErrPermissionDenied},
	} {
		if got := classify("open", tt.err); !errors.Is(got, tt.want) {
			t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
	if classify("open", nil) != nil {
		t.Error("classify(nil) should be nil")
	}
}

func TestIsBluetooth(t *testing.T) {
	if !IsBluetooth("AirPods Pro") || IsBluetooth("Built-in Microphone") {
		t.Error("IsBluetooth misclassified")
	}
}

func TestFindDevice(t *testing.T) {
	ctx := NewFakeContextPCM(nil, false)
	d, err := FindDevice(ctx, "fake")
	if err != nil || d == nil || d.ID != "fake" {
		t.Fatalf("FindDevice(fake) = %v, %v", d, err)
	}
	if d, err := FindDevice(ctx, ""); d != nil || err != nil {
		t.Errorf("FindDevice(\"\") = %v, %v, want default", d, err)
	}
	if _, err := FindDevice(ctx, "usb"); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("FindDevice(usb) err = %v", err)
	}
}

func TestFakeCaptureSync(t *testing.T) {
	pcm := make([]byte, 5000)
	ctx := NewFakeContextPCM(pcm, false)
	dev, err := ctx.NewCapture(nil, CaptureConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatal(err)
	}
	var mu sync.Mutex
	total := 0
	dev.SetCallback(func(data []byte, _ uint32) {
		mu.Lock()
		total += len(data)
		mu.Unlock()
	})
	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}
	dev.Stop()
	dev.Close()
	if total != len(pcm) {
		t.Errorf("delivered %d bytes, want %d", total, len(pcm))
	}
}

func TestFakeContextErrors(t *testing.T) {
	ctx := NewFakeContextPCM(nil, false)
	ctx.OpenErr = ErrDeviceUnavailable
	if _, err := ctx.NewCapture(nil, CaptureConfig{}); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("NewCapture err = %v", err)
	}
	ctx.OpenErr = nil
	ctx.StartErr = ErrPermissionDenied
	dev, _ := ctx.NewCapture(nil, CaptureConfig{})
	if err := dev.Start(); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Start err = %v", err)
	}
	dev.Stop()
}

// keys returns one key press per Read, as a raw terminal does.
type keys []string

func (k *keys) Read(p []byte) (int, error) {
	if len(*k) == 0 {
		return 0, io.EOF
	}
	n := copy(p, (*k)[0])
	*k = (*k)[1:]
	return n, nil
}

func TestPick(t *testing.T) {
	devices := []DeviceInfo{{Name: "Built-in"}, {Name: "AirPods Pro"}, {Name: "USB Mic"}}
	for _, tt := range []struct {
		name  string
		press keys
		want  int
		err   error
	}{
		{"enter", keys{"\r"}, 0, nil},
		{"arrows", keys{"\x1b[B", "\x1b[B", "\x1b[B", "\x1b[A", "\r"}, 1, nil},
		{"vim", keys{"j", "j", "\r"}, 2, nil},
		{"digit", keys{"3"}, 2, nil},
		{"digit out of range", keys{"9", "\r"}, 0, nil},
		{"ctrl+c", keys{"\x03"}, 0, ErrSelectionCancelled},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			got, err := pick(devices, &tt.press, &out)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if err == nil && got != tt.want {
				t.Errorf("pick = %d, want %d", got, tt.want)
			}
			if !strings.Contains(out.String(), "bluetooth") {
				t.Errorf("bluetooth device not tagged:\n%s", out.String())
			}
		})
	}

	if _, err := pick(devices, &keys{}, io.Discard); err == nil {
		t.Error("expected error at end of input")
	}
}
