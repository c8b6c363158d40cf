package email

import (
	"strings"
	"testing"
)

func TestRenderTemplates(t *testing.T) {
	body, err := Render("order_paid", map[string]any{
		"buyer":        "fan01",
		"order_number": "OR-1",
		"paid_at":      "2026-06-01",
		"total":        "9.99",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(body, "OR-1") || !strings.Contains(body, "9.99") {
		t.Fatalf("unexpected body: %s", body)
	}

	if _, err := Render("missing", nil); err == nil {
		t.Fatalf("expected error for unknown template")
	}
}

func TestComposeWithAttachment(t *testing.T) {
	p := NewSMTP(Config{Host: "localhost", Port: 25, From: "no-reply@example.com"})
	raw, err := p.compose(Message{
		To:      []string{"fan01@example.com"},
		Subject: "Receipt OR-1",
		Attachments: []Attachment{
			{Filename: "receipt-OR-1.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.4")},
		},
	}, "<p>hi</p>")
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	msg := string(raw)
	for _, want := range []string{
		"To: fan01@example.com",
		"multipart/mixed",
		`filename="receipt-OR-1.pdf"`,
		"JVBERi0xLjQ=",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("missing %q in message:\n%s", want, msg)
		}
	}
}
