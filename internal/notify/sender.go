package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/smtp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	"hexorsite/internal/config"
	"hexorsite/internal/models"
)

// LeadSender tells the sales inbox about a new website enquiry.
type LeadSender interface {
	NotifyLead(ctx context.Context, sub models.Submission) error
}

type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) LogSender { return LogSender{log: log} }

func (s LogSender) NotifyLead(ctx context.Context, sub models.Submission) error {
	_ = ctx
	s.log.Info().
		Int64("submission_id", sub.ID).
		Str("kind", string(sub.Kind)).
		Str("from", sub.Email).
		Msg("new lead received")
	return nil
}

type SMTPSender struct {
	host    string
	port    int
	from    string
	to      string
	appName string
}

func NewSender(cfg config.Config, log zerolog.Logger) LeadSender {
	switch cfg.LeadNotifySender {
	case "smtp":
		return SMTPSender{
			host:    cfg.SMTPHost,
			port:    cfg.SMTPPort,
			from:    cfg.LeadNotifyFrom,
			to:      cfg.LeadNotifyTo,
			appName: cfg.AppName,
		}
	default:
		return NewLogSender(log)
	}
}

func (s SMTPSender) NotifyLead(ctx context.Context, sub models.Submission) error {
	_ = ctx
	msg, err := composeLead(s.appName, s.from, s.to, sub, time.Now())
	if err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	return smtp.SendMail(addr, nil, s.from, []string{s.to}, msg)
}

func composeLead(appName, from, to string, sub models.Submission, at time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(at)
	h.SetAddressList("From", []*mail.Address{{Name: appName, Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetAddressList("Reply-To", []*mail.Address{{Name: sub.Name, Address: sub.Email}})
	h.SetSubject(fmt.Sprintf("[%s] New %s enquiry from %s", appName, kindLabel(sub.Kind), sub.Name))
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var body strings.Builder
	fmt.Fprintf(&body, "Name: %s\r\nEmail: %s\r\n", sub.Name, sub.Email)
	if sub.Company != nil && *sub.Company != "" {
		fmt.Fprintf(&body, "Company: %s\r\n", *sub.Company)
	}
	if sub.Service != nil && *sub.Service != "" {
		fmt.Fprintf(&body, "Service: %s\r\n", *sub.Service)
	}
	fmt.Fprintf(&body, "\r\n%s\r\n", sub.Message)

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, body.String()); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func kindLabel(k models.SubmissionKind) string {
	if k == models.SubmissionGetInTouch {
		return "get-in-touch"
	}
	return "contact"
}
