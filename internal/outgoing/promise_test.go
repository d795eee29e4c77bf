package outgoing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pvieira/imsgd/internal/store"
)

const chatGUID = "iMessage;-;+15551234567"

func textPromise(text string) *Promise {
	return NewPromise(Options{
		ChatGUID:    chatGUID,
		Text:        text,
		IssueOffset: 10 * time.Second,
	})
}

func fromMeRow(chat, text string, created time.Time) *store.Message {
	return &store.Message{
		GUID:      "row-" + text,
		Text:      text,
		FromMe:    true,
		IsSent:    true,
		CreatedAt: created,
		ChatGUIDs: []string{chat},
	}
}

func TestMatchSameChatSameText(t *testing.T) {
	p := textPromise("Hello")
	row := fromMeRow(chatGUID, "Hello", time.Now().Add(2*time.Second))
	if !p.Matches(row) {
		t.Error("row with same chat, same text, created after issue should match")
	}
	if !p.Resolve(row) {
		t.Error("Resolve on fresh promise = false")
	}
	got, err := p.Wait(context.Background())
	if err != nil || got != row {
		t.Errorf("Wait = %v, %v", got, err)
	}
}

func TestNoMatchRowTooOld(t *testing.T) {
	p := textPromise("Hello")
	// Created 20s in the past: before even the offset-adjusted issue time.
	row := fromMeRow(chatGUID, "Hello", time.Now().Add(-20*time.Second))
	if p.Matches(row) {
		t.Error("row created before the adjusted issue time must not match")
	}
}

func TestOffsetToleratesSlightlyEarlyRows(t *testing.T) {
	p := textPromise("Hello")
	// Created 5s "before" the send was issued; within the 10s offset.
	row := fromMeRow(chatGUID, "Hello", time.Now().Add(-5*time.Second))
	if !p.Matches(row) {
		t.Error("row within the backward offset window should match")
	}
}

func TestMatchIsChatScoped(t *testing.T) {
	p := textPromise("Hello")
	row := fromMeRow("iMessage;-;+15559999999", "Hello", time.Now())
	if p.Matches(row) {
		t.Error("row in a different chat must not match, even with identical text")
	}
}

func TestMatchChatGUIDVariants(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"iMessage;-;+15551234567", "iMessage;-;+15551234567", true},
		{"iMessage;-;+15551234567", "iMessage;-;5551234567", true},
		{"iMessage;-;5551234567", "iMessage;-;+15551234567", true},
		{"iMessage;-;user@example.com", "iMessage;-;User@example.com", true},
		{"iMessage;-;+15551234567", "iMessage;-;+15557654321", false},
		{"iMessage;-;user@example.com", "iMessage;-;other@example.com", false},
	}
	for _, tt := range tests {
		if got := chatGUIDsMatch(tt.a, tt.b); got != tt.want {
			t.Errorf("chatGUIDsMatch(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestMatchNormalizesText(t *testing.T) {
	p := textPromise("Hello, there!")
	row := fromMeRow(chatGUID, "hello THERE", time.Now())
	if !p.Matches(row) {
		t.Error("normalized text should match across punctuation and case")
	}
}

func TestMatchUsesSummaryFallback(t *testing.T) {
	p := textPromise("Hello")
	row := &store.Message{
		GUID: "r", FromMe: true, CreatedAt: time.Now(),
		ChatGUIDs: []string{chatGUID},
		Summary:   "Hello", // no plain text, rich-text derived only
	}
	if !p.Matches(row) {
		t.Error("universal-text fallback should be used when plain text is empty")
	}
}

func TestSubjectMustAgreeWhenBothPresent(t *testing.T) {
	p := NewPromise(Options{ChatGUID: chatGUID, Text: "body", Subject: "Re: plans"})
	row := fromMeRow(chatGUID, "body", time.Now())
	row.Subject = "Different subject"
	if p.Matches(row) {
		t.Error("mismatched subjects must not match")
	}
	row.Subject = "REPLANS" // normalizes equal to "Re: plans"
	if !p.Matches(row) {
		t.Error("normalized-equal subjects should match")
	}
	row.Subject = "" // only one side has a subject: text decides
	if !p.Matches(row) {
		t.Error("empty row subject should not block a text match")
	}
}

func TestAttachmentMatchByBaseName(t *testing.T) {
	p := NewPromise(Options{ChatGUID: chatGUID, Text: "photo.heic", Attachment: true})
	match := &store.Message{
		GUID: "a1", FromMe: true, CreatedAt: time.Now(),
		ChatGUIDs:   []string{chatGUID},
		Attachments: []store.Attachment{{TransferName: "photo.heic"}},
	}
	if !p.Matches(match) {
		t.Error("photo.heic should match an attachment promise for photo")
	}

	other := &store.Message{
		GUID: "a2", FromMe: true, CreatedAt: time.Now(),
		ChatGUIDs:   []string{chatGUID},
		Attachments: []store.Attachment{{TransferName: "photo2.heic"}},
	}
	if p.Matches(other) {
		t.Error("photo2.heic must not match a promise for photo")
	}
}

func TestSettleExactlyOnce(t *testing.T) {
	settles := 0
	p := NewPromise(Options{
		ChatGUID: chatGUID,
		Text:     "hi",
		Timeout:  20 * time.Millisecond,
		OnSettle: func(*Promise, Settlement) { settles++ },
	})

	// Let the timeout fire first.
	time.Sleep(60 * time.Millisecond)
	if _, err := p.Wait(context.Background()); !errors.Is(err, ErrMatchTimeout) {
		t.Fatalf("Wait = %v, want ErrMatchTimeout", err)
	}

	// A late resolve is a no-op.
	if p.Resolve(fromMeRow(chatGUID, "hi", time.Now())) {
		t.Error("Resolve after timeout reported settlement")
	}
	if _, err := p.Wait(context.Background()); !errors.Is(err, ErrMatchTimeout) {
		t.Errorf("result changed after late resolve: %v", err)
	}
	if settles != 1 {
		t.Errorf("OnSettle fired %d times, want 1", settles)
	}
}

func TestRejectCarriesRow(t *testing.T) {
	p := textPromise("hi")
	row := fromMeRow(chatGUID, "hi", time.Now())
	p.Reject(&NativeSendError{Code: 22, GUID: row.GUID}, row)

	got, err := p.Wait(context.Background())
	var ne *NativeSendError
	if !errors.As(err, &ne) || ne.Code != 22 {
		t.Fatalf("Wait err = %v, want NativeSendError 22", err)
	}
	if got != row {
		t.Error("rejected row not returned alongside the error")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	p := textPromise("never")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want deadline exceeded", err)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Hello, World!", "helloworld"},
		{"  spaces  ", "spaces"},
		{"émoji 😀 ok", "émojiok"},
		{"123-456", "123456"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBaseName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"photo.heic", "photo"},
		{"/tmp/up loads/My Photo.JPG", "myphoto"},
		{"archive.tar.gz", "archivetar"},
		{"noext", "noext"},
	}
	for _, tt := range tests {
		if got := BaseName(tt.in); got != tt.want {
			t.Errorf("BaseName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
