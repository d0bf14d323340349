package main

import (
	"bufio"
	"bytes"
	"context"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/config"
	"github.com/felixgeelhaar/healthbuddy/internal/daemon"
	"github.com/felixgeelhaar/healthbuddy/internal/onboarding"
	"github.com/felixgeelhaar/healthbuddy/internal/session"
)

func TestParseInput(t *testing.T) {
	single := &session.StepView{Type: onboarding.StepSingleChoice, Options: []string{"a", "b"}}
	multi := &session.StepView{Type: onboarding.StepMultipleChoice, Options: []string{"a", "b"}}

	tests := []struct {
		name string
		step *session.StepView
		line string
		want action
	}{
		{"blank", single, "   ", action{kind: actionNone}},
		{"quit", single, "Q", action{kind: actionQuit}},
		{"abandon", single, "abandon", action{kind: actionAbandon}},
		{"skip", single, "s", action{kind: actionSkip}},
		{"done", multi, "d", action{kind: actionConfirm}},
		{"number answers", single, "2", action{kind: actionAnswer, value: "b"}},
		{"number selects", multi, " 1 ", action{kind: actionSelect, value: "a"}},
		{"out of range is text", single, "3", action{kind: actionText, value: "3"}},
		{"free text", single, "I'm pretty busy", action{kind: actionText, value: "I'm pretty busy"}},
		{"no step", nil, "1", action{kind: actionText, value: "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseInput(tt.step, tt.line); got != tt.want {
				t.Errorf("parseInput(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{0, "[░░░░]"},
		{0.5, "[██░░]"},
		{1, "[████]"},
		{1.7, "[████]"},
		{-1, "[░░░░]"},
	}
	for _, tt := range tests {
		if got := renderProgressBar(tt.value, 4); got != tt.want {
			t.Errorf("renderProgressBar(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

// startDaemon serves a real daemon stack over httptest.
func startDaemon(t *testing.T) *client {
	t.Helper()

	cfg := config.DefaultLocalConfig()
	cfg.Onboarding.AnalysisDelayMS = 0
	srv, err := daemon.NewServer(context.Background(), daemon.ServerConfig{Config: cfg, DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("create daemon: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(context.Background())
	})
	return newClient(ts.URL)
}

func newOnboarder(api *client, script string) (*onboarder, *bytes.Buffer) {
	var out bytes.Buffer
	return &onboarder{
		api:  api,
		in:   bufio.NewScanner(strings.NewReader(script)),
		out:  &out,
		poll: 10 * time.Millisecond,
	}, &out
}

var resumeRe = regexp.MustCompile(`healthbuddy onboard ([0-9a-f-]{36})`)

func TestOnboarder_FullConversation(t *testing.T) {
	api := startDaemon(t)

	script := strings.Join([]string{
		"s",                   // welcome is not optional
		"1",                   // welcome
		"life got in the way", // exercise_history by free text
		"1", "3", "d",         // barriers
		"", "1", "1", "1", // schedule, time, energy
		"2", "d", // environment
		"1", "d", // motivations
		"1", "1", "1", "1", // success, accountability, wearables, investment
		"s", // physical considerations
		"2", // stress pattern
	}, "\n") + "\n"

	o, out := newOnboarder(api, script)
	if err := o.run(context.Background(), ""); err != nil {
		t.Fatalf("run() error = %v\noutput:\n%s", err, out.String())
	}

	got := out.String()
	for _, want := range []string{
		"1/16",
		"cannot be skipped",
		"✓ 1. Not enough time in my schedule",
		"s to skip",
		"Your trainer:",
		"Why this match",
		"[ Start My Health Journey with",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestOnboarder_PauseAndResume(t *testing.T) {
	api := startDaemon(t)

	o, out := newOnboarder(api, "1\nq\n")
	if err := o.run(context.Background(), ""); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	m := resumeRe.FindStringSubmatch(out.String())
	if m == nil {
		t.Fatalf("no resume hint in output:\n%s", out.String())
	}

	o, out = newOnboarder(api, "x\n")
	if err := o.run(context.Background(), m[1]); err != nil {
		t.Fatalf("resume run() error = %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "2/16") {
		t.Errorf("resume should continue at step 2:\n%s", got)
	}
	if !strings.Contains(got, "This onboarding was stopped.") {
		t.Errorf("abandon not reported:\n%s", got)
	}
}

func TestOnboarder_EOFPauses(t *testing.T) {
	api := startDaemon(t)

	o, out := newOnboarder(api, "")
	if err := o.run(context.Background(), ""); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(out.String(), "Paused.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestOnboarder_UnknownSession(t *testing.T) {
	api := startDaemon(t)

	o, _ := newOnboarder(api, "")
	err := o.run(context.Background(), "00000000-0000-0000-0000-000000000000")
	if err == nil || !strings.Contains(err.Error(), "session not found") {
		t.Errorf("run() error = %v, want session not found", err)
	}
}
