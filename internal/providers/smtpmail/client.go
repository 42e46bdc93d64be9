// Package smtpmail sends through an SMTP relay with STARTTLS and PLAIN auth.
package smtpmail

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"bulkmail/internal/domain"
	"bulkmail/internal/util"
)

type Settings struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

type Client struct {
	s Settings
}

func New(s Settings) *Client {
	if s.Port == 0 {
		s.Port = 587
	}
	return &Client{s: s}
}

// Send dials a fresh connection per message; the pool of dispatch workers
// bounds how many are open at once.
func (c *Client) Send(ctx context.Context, msg domain.Message) (domain.Receipt, error) {
	id := util.NewReceiptID()
	m, err := buildMsg(msg, id)
	if err != nil {
		return domain.Receipt{}, err
	}

	opts := []mail.Option{
		mail.WithPort(c.s.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if c.s.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(c.s.Username),
			mail.WithPassword(c.s.Password),
		)
	}
	if c.s.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(c.s.Timeout))
	}
	client, err := mail.NewClient(c.s.Host, opts...)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("%w: %w: smtp client: %v", domain.ErrSend, domain.ErrNonRetryable, err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return domain.Receipt{}, fmt.Errorf("%w: smtp: %v", domain.ErrSend, err)
	}
	return domain.Receipt{ID: id}, nil
}

func buildMsg(msg domain.Message, id string) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(msg.FromName, msg.From); err != nil {
		return nil, fmt.Errorf("%w: %w: invalid sender %q: %v", domain.ErrSend, domain.ErrNonRetryable, msg.From, err)
	}
	if err := m.AddToFormat(msg.ToName, msg.To); err != nil {
		return nil, fmt.Errorf("%w: %w: invalid recipient %q: %v", domain.ErrSend, domain.ErrNonRetryable, msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetGenHeader(mail.HeaderMessageID, "<"+id+"@bulkmail>")
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	if msg.Text != "" {
		m.AddAlternativeString(mail.TypeTextPlain, msg.Text)
	}
	return m, nil
}
