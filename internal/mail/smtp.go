package mail

import (
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/models"
)

const smtpTimeout = 30 * time.Second

// SMTPTransport delivers through the configured SMTP server. Each Send uses
// its own client connection so concurrent sends do not share state.
type SMTPTransport struct {
	options []gomail.Option
	host    string
	tracer  trace.Tracer
}

func NewSMTPTransport(settings models.MailSettings) (*SMTPTransport, error) {
	if settings.Host == "" || settings.Port == 0 {
		return nil, fmt.Errorf("%w: host and port are required", models.ErrMailNotConfigured)
	}

	options := []gomail.Option{
		gomail.WithPort(settings.Port),
		gomail.WithTimeout(smtpTimeout),
	}
	if settings.User != "" {
		options = append(options,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(settings.User),
			gomail.WithPassword(settings.Password),
		)
	}
	if settings.Secure {
		options = append(options, gomail.WithSSL())
	} else {
		options = append(options, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}

	// Fail on bad options now rather than on every send.
	if _, err := gomail.NewClient(settings.Host, options...); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMailNotConfigured, err)
	}

	return &SMTPTransport{
		options: options,
		host:    settings.Host,
		tracer:  otel.Tracer("mail-transport"),
	}, nil
}

func SMTPTransportFactory() TransportFactory {
	return func(settings models.MailSettings) (Transport, error) {
		return NewSMTPTransport(settings)
	}
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	ctx, span := t.tracer.Start(ctx, "mail.smtp.send",
		trace.WithAttributes(
			attribute.String("mail.host", t.host),
			attribute.String("mail.to", msg.To),
			attribute.String("operation", "mail.send"),
		))
	defer span.End()

	m := gomail.NewMsg()
	if err := m.From(msg.From); err != nil {
		span.RecordError(err)
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		span.RecordError(err)
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextHTML, msg.HTML)

	client, err := gomail.NewClient(t.host, t.options...)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
	}

	span.SetAttributes(attribute.Bool("success", true))
	return nil
}
