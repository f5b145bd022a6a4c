package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"voicediary/analysis"
	"voicediary/capture"
	"voicediary/diary"
	"voicediary/flow"
	"voicediary/localcache"
	"voicediary/nettrace"
)

func newScriptController(t *testing.T, store diary.Store) *flow.Controller {
	t.Helper()
	backend := capture.NewFakeBackend(capture.KindRecorder)
	backend.Fragments = [][]byte{[]byte("fLaC-one"), []byte("-two")}
	cache, err := localcache.Open("")
	if err != nil {
		t.Fatal(err)
	}
	c := flow.NewController(context.Background(), flow.SessionContext{}, flow.Deps{
		Analyzer: analysis.NewClient(analysis.Config{}, nettrace.New(time.Second)),
		Capture:  capture.NewSession(backend),
		Store:    store,
		Cache:    cache,
		Steps:    2,
		Spawn:    func(f func()) { f() },
	})
	t.Cleanup(c.Close)
	return c
}

func script(lines ...string) *strings.Reader {
	return strings.NewReader(strings.Join(lines, "\n") + "\n")
}

func TestScriptedElderlyReport(t *testing.T) {
	store := diary.NewMemoryStore()
	c := newScriptController(t, store)
	var out strings.Builder

	err := runScripted(context.Background(), c, script(
		"ROLE elderly",
		"FIELD name Somsri",
		"NEXT",
		"FIELD phone 081 234 5678",
		"NEXT",
		"WAIT Dashboard",
		"RECORD",
		"STOP",
		"WAIT Result",
		"ACK",
		"WAIT Dashboard",
		"ENTRIES",
		"QUIT",
	), &out)
	if err != nil {
		t.Fatalf("runScripted: %v\n%s", err, out.String())
	}

	got := out.String()
	for _, want := range []string{
		"STATE RoleSelect\n",
		"STATE Onboarding(1)\n",
		"STATE Onboarding(2)\n",
		"STATE Dashboard\n",
		"STATE Recording\n",
		"STATE Processing\n",
		"STATE Result\n",
		"RESULT severity=Low label=normal fallback=true",
		"ENTRIES 1\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if c.Context().Profile.Name != "Somsri" {
		t.Errorf("profile = %+v", c.Context().Profile)
	}
}

func TestScriptedLinking(t *testing.T) {
	store := diary.NewMemoryStore()
	ctx := context.Background()
	if err := store.SaveProfile(ctx, "uid-1", diary.Profile{Name: "Somchai"}, "123-456"); err != nil {
		t.Fatal(err)
	}
	c := newScriptController(t, store)
	var out strings.Builder

	err := runScripted(ctx, c, script(
		"ROLE relative",
		"DIGIT 12345",
		"DELETE",
		"DIGIT 56",
		"WAIT LinkSuccess",
		"PROCEED",
		"QUIT",
	), &out)
	if err != nil {
		t.Fatalf("runScripted: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "STATE RelativeDashboard\n") {
		t.Errorf("output:\n%s", out.String())
	}
	if c.Context().LinkedCode != "123-456" {
		t.Errorf("linked code = %q", c.Context().LinkedCode)
	}
}

func TestScriptedNoticeAndUnknownCommand(t *testing.T) {
	c := newScriptController(t, diary.NewMemoryStore())
	var out strings.Builder

	err := runScripted(context.Background(), c, script(
		"ROLE recovery",
		"PHONE 12",
		"JUMP",
		"PHONE 0812345678",
	), &out)
	if err != nil {
		t.Fatalf("runScripted: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"STATE RecoveryLogin notice=invalid_phone\n",
		`ERROR unknown command "JUMP"`,
		"STATE RecoveryLogin notice=phone_not_found\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestScriptedWaitTimeout(t *testing.T) {
	c := newScriptController(t, diary.NewMemoryStore())
	var out strings.Builder

	err := runScripted(context.Background(), c, script("WAIT Dashboard 50"), &out)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("err = %v, want timeout", err)
	}
	if err := runScripted(context.Background(), c, script("WAIT Nowhere"), &out); err == nil {
		t.Fatal("expected error for unknown state")
	}
}
