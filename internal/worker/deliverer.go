package worker

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Priya8975/bulk-mail-dispatcher/internal/domain"
	"github.com/wneessen/go-mail"
)

// Envelope is one fully rendered message for one recipient.
type Envelope struct {
	FromName   string
	FromEmail  string
	To         string
	Subject    string
	Body       string
	IsHTML     bool
	Attachment string
}

// Handle is a reusable send capability bound to one endpoint. Send returns
// the delivery id assigned to the message. Failures of the endpoint itself are
// reported as *domain.TransportError; any other error means the message could
// not be built.
type Handle interface {
	Send(ctx context.Context, env Envelope) (string, error)
	Close() error
}

// Dialer creates handles from endpoint connection parameters.
type Dialer interface {
	Dial(ep domain.Endpoint) (Handle, error)
}

// SMTPDialer builds go-mail clients for endpoints.
type SMTPDialer struct {
	timeout            time.Duration
	insecureSkipVerify bool
	logger             *slog.Logger
}

func NewSMTPDialer(timeout time.Duration, insecureSkipVerify bool, logger *slog.Logger) *SMTPDialer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SMTPDialer{
		timeout:            timeout,
		insecureSkipVerify: insecureSkipVerify,
		logger:             logger,
	}
}

// Dial prepares a handle. No connection is made until the first Send.
func (d *SMTPDialer) Dial(ep domain.Endpoint) (Handle, error) {
	client, err := d.newClient(ep)
	if err != nil {
		return nil, err
	}

	limit := ep.MaxMessagesPerConn
	if limit <= 0 {
		limit = domain.DefaultMaxMessagesPerConn
	}

	return &smtpHandle{
		client:   client,
		endpoint: ep,
		limit:    limit,
		logger:   d.logger,
	}, nil
}

// Verify connects and authenticates against the endpoint without sending.
func (d *SMTPDialer) Verify(ctx context.Context, ep domain.Endpoint) error {
	client, err := d.newClient(ep)
	if err != nil {
		return err
	}
	if err := client.DialWithContext(ctx); err != nil {
		return fmt.Errorf("connecting to %s:%d: %w", ep.Host, ep.Port, err)
	}
	return client.Close()
}

func (d *SMTPDialer) newClient(ep domain.Endpoint) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(ep.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(ep.Username),
		mail.WithPassword(ep.Password),
		mail.WithTimeout(d.timeout),
		mail.WithTLSConfig(&tls.Config{
			ServerName:         ep.Host,
			InsecureSkipVerify: d.insecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		}),
	}
	if ep.Secure {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	client, err := mail.NewClient(ep.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("configuring smtp client for %s: %w", ep.Host, err)
	}
	return client, nil
}

// smtpHandle keeps one SMTP connection open across sends and redials after
// limit messages.
type smtpHandle struct {
	client   *mail.Client
	endpoint domain.Endpoint
	limit    int
	logger   *slog.Logger

	connected  bool
	sentOnConn int
}

func (h *smtpHandle) Send(ctx context.Context, env Envelope) (string, error) {
	msg, err := buildMessage(env)
	if err != nil {
		return "", err
	}

	if h.connected && h.sentOnConn >= h.limit {
		h.logger.Debug("connection message cap reached, redialing",
			"endpoint_id", h.endpoint.ID,
			"limit", h.limit,
		)
		h.Close()
	}

	if !h.connected {
		if err := h.client.DialWithContext(ctx); err != nil {
			return "", domain.NewTransportError(h.endpoint.ID, fmt.Errorf("connecting to %s: %w", h.endpoint.Host, err))
		}
		h.connected = true
		h.sentOnConn = 0
	}

	if err := h.client.Send(msg); err != nil {
		return "", domain.NewTransportError(h.endpoint.ID, err)
	}
	h.sentOnConn++

	return msg.GetMessageID(), nil
}

func (h *smtpHandle) Close() error {
	if !h.connected {
		return nil
	}
	h.connected = false
	h.sentOnConn = 0
	return h.client.Close()
}

func buildMessage(env Envelope) (*mail.Msg, error) {
	msg := mail.NewMsg()

	var err error
	if env.FromName != "" {
		err = msg.FromFormat(env.FromName, env.FromEmail)
	} else {
		err = msg.From(env.FromEmail)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", env.FromEmail, err)
	}
	if err := msg.To(env.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", env.To, err)
	}

	msg.Subject(env.Subject)
	if env.IsHTML {
		msg.SetBodyString(mail.TypeTextHTML, env.Body)
	} else {
		msg.SetBodyString(mail.TypeTextPlain, env.Body)
	}
	if env.Attachment != "" {
		if _, err := os.Stat(env.Attachment); err != nil {
			return nil, fmt.Errorf("attachment: %w", err)
		}
		msg.AttachFile(env.Attachment)
	}
	msg.SetMessageID()
	msg.SetDate()

	return msg, nil
}
