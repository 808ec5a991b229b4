package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	htmltemplate "html/template"
	"log/slog"
	netmail "net/mail"
	"net/textproto"
	"os"
	texttemplate "text/template"
	"time"

	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
	"github.com/shandysiswandi/stepguard/internal/pkg/mail"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

//go:embed template/*.tmpl
var templates embed.FS

// ErrMissingParam is returned when the caller omits a required template
// parameter. It signals a programming error, not a delivery failure.
var ErrMissingParam = errors.New("email: missing template parameter")

type Config struct {
	From    string
	Subject string
	OrgName string
	Timeout time.Duration
}

// Notifier delivers one-time codes by email. Expected delivery failures are
// reported through entity.Delivery and never as an error.
type Notifier struct {
	client mail.Mail
	cfg    Config
	text   *texttemplate.Template
	html   *htmltemplate.Template
	ins    instrument.Instrumentation
}

func New(client mail.Mail, cfg Config, ins instrument.Instrumentation) (*Notifier, error) {
	text, err := texttemplate.New("otp.txt.tmpl").Option("missingkey=zero").ParseFS(templates, "template/otp.txt.tmpl")
	if err != nil {
		return nil, err
	}

	html, err := htmltemplate.New("otp.html.tmpl").Option("missingkey=zero").ParseFS(templates, "template/otp.html.tmpl")
	if err != nil {
		return nil, err
	}

	if cfg.Subject == "" {
		cfg.Subject = "Your admin verification code"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Notifier{client: client, cfg: cfg, text: text, html: html, ins: ins}, nil
}

func (n *Notifier) Send(ctx context.Context, address string, params map[string]string) (entity.Delivery, error) {
	ctx, span := n.ins.Tracer("admin.outbound.email").Start(ctx, "Send")
	defer span.End()

	if params[entity.ParamCode] == "" || params[entity.ParamExpiresAt] == "" {
		span.RecordError(ErrMissingParam)
		span.SetStatus(codes.Error, ErrMissingParam.Error())
		return entity.Delivery{}, ErrMissingParam
	}

	if n.client == nil || n.cfg.From == "" {
		slog.WarnContext(ctx, "email notifier not configured, skipping delivery", "address", address)
		return n.result(span, entity.DeliveryStatusSkipped, entity.DeliveryReasonMisconfigured), nil
	}

	if _, err := netmail.ParseAddress(address); err != nil {
		slog.WarnContext(ctx, "email notifier rejected recipient", "address", address, "error", err)
		return n.result(span, entity.DeliveryStatusFailed, entity.DeliveryReasonInvalidRecipient), nil
	}

	data := map[string]string{"org_name": n.cfg.OrgName}
	for k, v := range params {
		data[k] = v
	}

	var textBody, htmlBody bytes.Buffer
	if err := n.text.Execute(&textBody, data); err != nil {
		return entity.Delivery{}, err
	}
	if err := n.html.Execute(&htmlBody, data); err != nil {
		return entity.Delivery{}, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	err := n.client.Send(sendCtx, mail.Message{
		From:     n.cfg.From,
		To:       []string{address},
		Subject:  n.cfg.Subject,
		TextBody: textBody.String(),
		HTMLBody: htmlBody.String(),
	})
	if err != nil {
		span.RecordError(err)
		reason := classify(err)
		slog.ErrorContext(ctx, "failed to send otp email", "address", address, "delivery_reason", string(reason), "error", err)
		return n.result(span, entity.DeliveryStatusFailed, reason), nil
	}

	return n.result(span, entity.DeliveryStatusDelivered, entity.DeliveryReasonNone), nil
}

func (n *Notifier) result(span trace.Span, status entity.DeliveryStatus, reason entity.DeliveryReason) entity.Delivery {
	span.SetAttributes(
		attribute.String("delivery.status", string(status)),
		attribute.String("delivery.reason", string(reason)),
	)
	return entity.Delivery{Status: status, Reason: reason}
}

// classify maps a send error to a delivery reason. SMTP replies are matched
// by reply code.
func classify(err error) entity.DeliveryReason {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return entity.DeliveryReasonTimeout
	}

	if errors.Is(err, mail.ErrSMTPNoSender) || errors.Is(err, mail.ErrSMTPBadSender) || errors.Is(err, mail.ErrSMTPHostPortRequired) {
		return entity.DeliveryReasonMisconfigured
	}

	if errors.Is(err, mail.ErrSMTPNoRecipients) {
		return entity.DeliveryReasonInvalidRecipient
	}

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 550, 551, 552, 553:
			return entity.DeliveryReasonInvalidRecipient
		case 421, 450, 451, 452, 554:
			return entity.DeliveryReasonQuotaExceeded
		case 530, 534, 535:
			return entity.DeliveryReasonMisconfigured
		}
	}

	return entity.DeliveryReasonProviderError
}
