package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/wneessen/go-mail"
)

// SMTPMailer delivers notifications over SMTP
type SMTPMailer struct {
	client *mail.Client
	from   string
}

func NewSMTPMailer(host string, port int, user, password, from string) (*SMTPMailer, error) {
	if host == "" {
		return nil, fmt.Errorf("SMTP host not configured")
	}

	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if user != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(user),
			mail.WithPassword(password),
		)
	}

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}
	return &SMTPMailer{client: client, from: from}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, email *Email) error {
	msg := mail.NewMsg()

	from := email.From
	if from == "" {
		from = m.from
	}
	if err := msg.From(from); err != nil {
		return fmt.Errorf("invalid from address %q: %w", from, err)
	}
	if err := msg.To(splitAddresses(email.To)...); err != nil {
		return fmt.Errorf("invalid to address %q: %w", email.To, err)
	}
	if email.ReplyTo != "" {
		if err := msg.ReplyTo(email.ReplyTo); err != nil {
			return fmt.Errorf("invalid reply-to address %q: %w", email.ReplyTo, err)
		}
	}
	msg.Subject(email.Subject)

	if email.Plain {
		msg.SetBodyString(mail.TypeTextPlain, email.Body)
	} else {
		msg.SetBodyString(mail.TypeTextHTML, email.Body)
		msg.AddAlternativeString(mail.TypeTextPlain, StripTags(email.Body))
	}

	for _, a := range email.Attachments {
		var opts []mail.FileOption
		if a.ContentType != "" {
			opts = append(opts, mail.WithFileContentType(mail.ContentType(a.ContentType)))
		}
		if err := msg.AttachReader(a.Filename, bytes.NewReader(a.Content), opts...); err != nil {
			return fmt.Errorf("failed to attach %s: %w", a.Filename, err)
		}
	}

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// LogMailer only logs notifications, for development without SMTP
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, email *Email) error {
	log.Printf("Email to %s from %s: %s (%d attachments)", email.To, email.From, email.Subject, len(email.Attachments))
	return nil
}

func splitAddresses(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
