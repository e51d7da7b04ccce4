package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/textproto"
	"strings"

	"github.com/wiki-mailauth/internal/config"
	"github.com/wiki-mailauth/internal/domain"
	"github.com/wiki-mailauth/internal/pkg/emailaddr"
	"github.com/wiki-mailauth/internal/pkg/id"
	"github.com/wneessen/go-mail"
)

// Mailer sends emails. Failures are returned as *domain.DeliveryError.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) error
	// Ping connects and authenticates without sending anything.
	Ping(ctx context.Context) error
}

type mailer struct {
	cfg config.SMTP
}

func NewMailer(cfg config.SMTP) (Mailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}
	return &mailer{cfg: cfg}, nil
}

// ErrNotConfigured is wrapped by every failure of an Unconfigured mailer.
var ErrNotConfigured = errors.New("SMTP is not configured")

type unconfigured struct {
	reason error
}

// Unconfigured returns a Mailer that fails every call with a
// DeliveryOther error. It lets the API run while SMTP settings are missing.
func Unconfigured(reason error) Mailer {
	return unconfigured{reason: reason}
}

func (u unconfigured) SendEmail(context.Context, string, string, string) error {
	return u.err()
}

func (u unconfigured) Ping(context.Context) error {
	return u.err()
}

func (u unconfigured) err() error {
	return &domain.DeliveryError{Kind: domain.DeliveryOther, Err: fmt.Errorf("%w: %v", ErrNotConfigured, u.reason)}
}

func (m *mailer) SendEmail(ctx context.Context, to, subject, htmlBody string) error {
	msg, err := m.buildMessage(to, subject, htmlBody)
	if err != nil {
		return &domain.DeliveryError{Kind: domain.DeliveryOther, Err: err}
	}
	client, err := m.client()
	if err != nil {
		return &domain.DeliveryError{Kind: domain.DeliveryOther, Err: err}
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return &domain.DeliveryError{Kind: classify(err), Err: err}
	}
	slog.Info("email sent", "to", emailaddr.Mask(to), "message_id", msg.GetGenHeader(mail.HeaderMessageID))
	return nil
}

func (m *mailer) Ping(ctx context.Context) error {
	client, err := m.client()
	if err != nil {
		return &domain.DeliveryError{Kind: domain.DeliveryOther, Err: err}
	}
	if err := client.DialWithContext(ctx); err != nil {
		return &domain.DeliveryError{Kind: classify(err), Err: err}
	}
	return client.Close()
}

func (m *mailer) buildMessage(to, subject, htmlBody string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if m.cfg.FromName != "" {
		if err := msg.FromFormat(m.cfg.FromName, m.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("setting from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetMessageIDWithValue(id.New() + "@" + m.cfg.Host)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	return msg, nil
}

func (m *mailer) client() (*mail.Client, error) {
	opts := []mail.Option{mail.WithPort(m.cfg.Port)}
	if m.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(m.cfg.Timeout))
	}
	if m.cfg.TLS {
		opts = append(opts,
			mail.WithTLSPolicy(mail.TLSMandatory),
			mail.WithTLSConfig(&tls.Config{
				ServerName:         m.cfg.Host,
				InsecureSkipVerify: m.cfg.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed relays
				MinVersion:         tls.VersionTLS12,
			}),
		)
		// Implicit TLS on 465, STARTTLS elsewhere.
		if m.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if m.cfg.Username != "" && m.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating mail client: %w", err)
	}
	return client, nil
}

// classify maps a go-mail failure to the kind operators need to see.
func classify(err error) domain.DeliveryKind {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 530, 534, 535:
			return domain.DeliveryAuth
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return domain.DeliveryConnection
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "auth"):
		return domain.DeliveryAuth
	case strings.Contains(lower, "dial"), strings.Contains(lower, "connection"):
		return domain.DeliveryConnection
	default:
		return domain.DeliveryOther
	}
}
