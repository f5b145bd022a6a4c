package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"voicediary/flow"
	"voicediary/log"
)

const (
	waitTimeout  = 30 * time.Second
	waitInterval = 20 * time.Millisecond
)

var roleEvents = map[string]flow.EventKind{
	"elderly":  flow.SelectElderly,
	"relative": flow.SelectRelative,
	"recovery": flow.SelectRecovery,
}

var simpleEvents = map[string]flow.EventKind{
	"RESUME":  flow.Resume,
	"NEXT":    flow.Next,
	"BACK":    flow.Back,
	"RECORD":  flow.StartCapture,
	"STOP":    flow.StopCapture,
	"CANCEL":  flow.Cancel,
	"ACK":     flow.Acknowledge,
	"DELETE":  flow.DeleteDigit,
	"PROCEED": flow.Proceed,
}

// scriptHost drives a controller from line commands and reports every state
// change on out.
type scriptHost struct {
	c *flow.Controller

	mu   sync.Mutex
	out  io.Writer
	last string
}

// runScripted reads one command per line from in until QUIT, end of input or
// cancellation of ctx:
//
//	ROLE elderly|relative|recovery
//	FIELD <name> <value>
//	PHONE <number>
//	DIGIT <digits>
//	RESUME NEXT BACK RECORD STOP CANCEL ACK DELETE PROCEED
//	WAIT <State> [timeout_ms]
//	SLEEP <ms>
//	ENTRIES
//	QUIT
//
// A WAIT that times out ends the script with an error.
func runScripted(ctx context.Context, c *flow.Controller, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := &scriptHost{c: c, out: out}
	c.OnChange(h.report)
	h.report(c.State())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := h.exec(ctx, strings.TrimSpace(line))
			if err != nil {
				h.printf("ERROR %v\n", err)
				return err
			}
			if quit {
				return nil
			}
		}
	}
}

func (h *scriptHost) exec(ctx context.Context, line string) (quit bool, err error) {
	if line == "" || strings.HasPrefix(line, "#") {
		return false, nil
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	cmd = strings.ToUpper(cmd)

	if kind, ok := simpleEvents[cmd]; ok {
		h.c.Dispatch(flow.Event{Kind: kind})
		return false, nil
	}

	switch cmd {
	case "QUIT":
		return true, nil
	case "ROLE":
		kind, ok := roleEvents[strings.ToLower(arg)]
		if !ok {
			h.printf("ERROR unknown role %q\n", arg)
			return false, nil
		}
		h.c.Dispatch(flow.Event{Kind: kind})
	case "FIELD":
		field, value, _ := strings.Cut(arg, " ")
		h.c.Dispatch(flow.Event{Kind: flow.UpdateProfile, Field: field, Value: strings.TrimSpace(value)})
	case "PHONE":
		h.c.Dispatch(flow.Event{Kind: flow.SubmitPhone, Phone: arg})
	case "DIGIT":
		for _, r := range arg {
			h.c.Dispatch(flow.Event{Kind: flow.EnterDigit, Digit: r})
		}
	case "WAIT":
		return false, h.wait(ctx, arg)
	case "SLEEP":
		ms, err := strconv.Atoi(arg)
		if err != nil {
			h.printf("ERROR bad duration %q\n", arg)
			return false, nil
		}
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-ctx.Done():
		}
	case "ENTRIES":
		entries := h.c.Entries()
		h.printf("ENTRIES %d\n", len(entries))
		for _, e := range entries {
			h.printf("ENTRY %s %s\n", e.Severity, e.ClinicalSummary)
		}
	default:
		log.Warnf("script: unknown command %q", line)
		h.printf("ERROR unknown command %q\n", cmd)
	}
	return false, nil
}

func (h *scriptHost) wait(ctx context.Context, arg string) error {
	name, ms, _ := strings.Cut(arg, " ")
	want, ok := flow.ParseKind(name)
	if !ok {
		return fmt.Errorf("wait: unknown state %q", name)
	}
	timeout := waitTimeout
	if ms != "" {
		n, err := strconv.Atoi(strings.TrimSpace(ms))
		if err != nil {
			return fmt.Errorf("wait: bad timeout %q", ms)
		}
		timeout = time.Duration(n) * time.Millisecond
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(waitInterval)
	defer tick.Stop()
	for {
		if s := h.c.State(); s.Kind == want && !s.Pending {
			return nil
		}
		select {
		case <-tick.C:
		case <-deadline.C:
			return fmt.Errorf("wait %s: timed out after %v in %s", want, timeout, h.c.State())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// report prints a STATE line for each distinct state, plus the analysis on
// entering Result.
func (h *scriptHost) report(s flow.State) {
	line := "STATE " + s.String()
	if s.Notice != flow.NoNotice {
		line += " notice=" + string(s.Notice)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if line == h.last {
		return
	}
	h.last = line
	fmt.Fprintln(h.out, line)
	if s.Kind == flow.Result {
		if r := h.c.Context().LastResult; r != nil {
			fmt.Fprintf(h.out, "RESULT severity=%s label=%s fallback=%t summary=%q\n",
				r.Severity.Level, r.Severity.Label, r.Fallback, r.ClinicalSummary)
		}
	}
}

func (h *scriptHost) printf(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.out, format, args...)
}
