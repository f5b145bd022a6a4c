//go:build windows

package shutdown

import (
	"context"
	"os"
	"os/signal"
)

// Context is cancelled on interrupt.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt)
}
