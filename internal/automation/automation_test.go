package automation

import (
	"context"
	"strings"
	"testing"
)

func TestCleanError(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{
			"52:67: execution error: Messages got an error: Can't get chat id \"bogus\". (-1728)",
			"Messages got an error: Can't get chat id \"bogus\".",
		},
		{
			"execution error: Messages got an error: AppleEvent timed out. (-1712)",
			"Messages got an error: AppleEvent timed out.",
		},
		{
			"0:24: execution error: System Events got an error: osascript is not allowed assistive access. (-25211)",
			"System Events got an error: osascript is not allowed assistive access.",
		},
		{"plain failure", "plain failure"},
		{"", ""},
		{"first line (-10)\nsecond line", "first line"},
	}
	for _, tc := range cases {
		if got := CleanError(tc.in); got != tc.want {
			t.Errorf("CleanError(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

type recordingRunner struct {
	script string
	args   []string
	out    string
	err    error
}

func (r *recordingRunner) Run(_ context.Context, script string, args ...string) (string, error) {
	r.script = script
	r.args = args
	return r.out, r.err
}

func TestSendTextPassesChatAndBody(t *testing.T) {
	rec := &recordingRunner{}
	m := NewMessages(rec, nil)

	if err := m.SendText(context.Background(), "iMessage;-;+15551234567", "hello"); err != nil {
		t.Fatal(err)
	}
	if len(rec.args) != 2 || rec.args[0] != "iMessage;-;+15551234567" || rec.args[1] != "hello" {
		t.Fatalf("args = %v", rec.args)
	}
	if !strings.Contains(rec.script, "send theText to chat id targetChat") {
		t.Fatal("unexpected script body")
	}
}

func TestSendTextDirectUsesParticipantAddress(t *testing.T) {
	rec := &recordingRunner{}
	m := NewMessages(rec, nil)

	if err := m.SendTextDirect(context.Background(), "+15551234567", "hello"); err != nil {
		t.Fatal(err)
	}
	if rec.args[0] != "+15551234567" {
		t.Fatalf("args = %v", rec.args)
	}
	if !strings.Contains(rec.script, "participant theAddress") {
		t.Fatal("unexpected script body")
	}
}

func TestSendAttachmentUsesPosixFile(t *testing.T) {
	rec := &recordingRunner{}
	m := NewMessages(rec, nil)

	if err := m.SendAttachment(context.Background(), "iMessage;-;+15551234567", "/tmp/photo.heic"); err != nil {
		t.Fatal(err)
	}
	if rec.args[1] != "/tmp/photo.heic" {
		t.Fatalf("args = %v", rec.args)
	}
	if !strings.Contains(rec.script, "POSIX file") {
		t.Fatal("unexpected script body")
	}
}

func TestScriptErrorSurfaces(t *testing.T) {
	rec := &recordingRunner{err: &ScriptError{Message: "AppleEvent timed out."}}
	m := NewMessages(rec, nil)

	err := m.SendText(context.Background(), "iMessage;-;+15551234567", "hello")
	if err == nil || err.Error() != "AppleEvent timed out." {
		t.Fatalf("err = %v", err)
	}
}

func TestTypingIndicatorParsesCount(t *testing.T) {
	rec := &recordingRunner{out: "1"}
	m := NewMessages(rec, nil)

	typing, err := m.TypingIndicator(context.Background(), "Climbing Crew")
	if err != nil || !typing {
		t.Fatalf("typing = %v, err = %v", typing, err)
	}

	rec.out = "0"
	typing, err = m.TypingIndicator(context.Background(), "Climbing Crew")
	if err != nil || typing {
		t.Fatalf("typing = %v, err = %v", typing, err)
	}

	// Junk output degrades to "not typing" rather than an error.
	rec.out = "missing value"
	typing, err = m.TypingIndicator(context.Background(), "Climbing Crew")
	if err != nil || typing {
		t.Fatalf("typing = %v, err = %v", typing, err)
	}
}
