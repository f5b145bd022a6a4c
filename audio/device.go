package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

var ErrSelectionCancelled = errors.New("device selection cancelled")

// SelectDevice lets the user pick a microphone on the terminal. With a
// single device it returns that device without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, err
	}
	switch len(devices) {
	case 0:
		return nil, fmt.Errorf("%w: no capture devices found", ErrDeviceUnavailable)
	case 1:
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	i, err := pick(devices, os.Stdin, os.Stdout)
	if err != nil {
		return nil, err
	}
	return &devices[i], nil
}

// pick reads raw key presses from in until Enter, a digit or Ctrl+C, and
// redraws the list on out after every move.
func pick(devices []DeviceInfo, in io.Reader, out io.Writer) (int, error) {
	cursor := 0
	draw := func() {
		fmt.Fprint(out, "\r\x1b[J")
		fmt.Fprint(out, "Select microphone (↑/↓ or 1-9, Enter to confirm):\r\n\r\n")
		for i, d := range devices {
			tag := ""
			if IsBluetooth(d.Name) {
				tag = " \x1b[33m[bluetooth, may sound muffled]\x1b[0m"
			}
			if i == cursor {
				fmt.Fprintf(out, "  \x1b[1;36m▶ %d. %s%s\x1b[0m\r\n", i+1, d.Name, tag)
			} else {
				fmt.Fprintf(out, "    %d. %s%s\r\n", i+1, d.Name, tag)
			}
		}
	}
	move := func(delta int) {
		cursor = max(0, min(len(devices)-1, cursor+delta))
	}

	draw()
	buf := make([]byte, 3)
	for {
		n, err := in.Read(buf)
		if err != nil {
			return 0, fmt.Errorf("reading input: %w", err)
		}
		switch {
		case n == 1 && (buf[0] == '\r' || buf[0] == '\n'):
			fmt.Fprint(out, "\r\n")
			return cursor, nil
		case n == 1 && buf[0] == 3: // Ctrl+C
			fmt.Fprint(out, "\r\n")
			return 0, ErrSelectionCancelled
		case n == 1 && buf[0] >= '1' && buf[0] <= '9':
			if i := int(buf[0] - '1'); i < len(devices) {
				fmt.Fprint(out, "\r\n")
				return i, nil
			}
		case n == 1 && buf[0] == 'j', n == 3 && buf[0] == 0x1b && buf[1] == '[' && buf[2] == 'B':
			move(1)
		case n == 1 && buf[0] == 'k', n == 3 && buf[0] == 0x1b && buf[1] == '[' && buf[2] == 'A':
			move(-1)
		}
		fmt.Fprintf(out, "\x1b[%dA", len(devices)+2)
		draw()
	}
}
