package notify

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	"hexorsite/internal/config"
	"hexorsite/internal/models"
)

func TestComposeLeadBuildsParsableMessage(t *testing.T) {
	company := "Acme"
	sub := models.Submission{Kind: models.SubmissionGetInTouch, Name: "Jane Roe", Email: "jane@acme.io", Company: &company, Message: "We need a pentest."}
	raw, err := composeLead("cyber_Hexor", "noreply@example.com", "sales@example.com", sub, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	subject, err := mr.Header.Subject()
	if err != nil {
		t.Fatalf("subject: %v", err)
	}
	if subject != "[cyber_Hexor] New get-in-touch enquiry from Jane Roe" {
		t.Fatalf("unexpected subject %q", subject)
	}
	replyTo, err := mr.Header.AddressList("Reply-To")
	if err != nil || len(replyTo) != 1 || replyTo[0].Address != "jane@acme.io" {
		t.Fatalf("unexpected reply-to: %v %v", replyTo, err)
	}

	part, err := mr.NextPart()
	if err != nil {
		t.Fatalf("part: %v", err)
	}
	body, err := io.ReadAll(part.Body)
	if err != nil {
		t.Fatalf("body: %v", err)
	}
	if !strings.Contains(string(body), "Company: Acme") || !strings.Contains(string(body), "We need a pentest.") {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestNewSenderDefaultsToLog(t *testing.T) {
	if _, ok := NewSender(config.Config{}, zerolog.Nop()).(LogSender); !ok {
		t.Fatalf("expected log sender by default")
	}
	if _, ok := NewSender(config.Config{LeadNotifySender: "smtp", LeadNotifyTo: "x@y.z"}, zerolog.Nop()).(SMTPSender); !ok {
		t.Fatalf("expected smtp sender")
	}
}
