package mail

import (
	"strings"
	"testing"

	"github.com/briefwire/briefwire/internal/digest"
)

func TestBuildMessage(t *testing.T) {
	nl := digest.Newsletter{
		Subject: "This week in AI",
		HTML:    "<html><body><h1>This week in AI</h1></body></html>",
		Text:    "This week in AI",
	}
	msg, err := buildMessage("digest@example.com", "reader@example.com", nl)
	if err != nil {
		t.Fatalf("buildMessage() error = %v", err)
	}
	s := string(msg)
	for _, want := range []string{
		"From: digest@example.com",
		"To: reader@example.com",
		"Subject: This week in AI",
		"multipart/alternative",
		"text/plain; charset=utf-8",
		"text/html; charset=utf-8",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestLogSender(t *testing.T) {
	sender := &LogSender{}
	err := sender.Send("reader@example.com", digest.Newsletter{Subject: "s"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
}
