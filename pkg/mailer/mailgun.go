package mailer

import (
	"context"
	"errors"
	"time"

	mg "github.com/mailgun/mailgun-go/v4"
)

var ErrMailgunNotConfigured = errors.New("mailgun domain, api key and sender are required")

var _ Sender = (*Mailgun)(nil)

// Mailgun delivers rendered email jobs through the Mailgun HTTP API.
type Mailgun struct {
	Sender  string
	Timeout time.Duration
	client  mg.Mailgun
}

// NewMailgun builds the client once. apiBase is optional and selects the
// region endpoint, e.g. mg.APIBaseEU.
func NewMailgun(domain, apiKey, sender, apiBase string) (*Mailgun, error) {
	if domain == "" || apiKey == "" || sender == "" {
		return nil, ErrMailgunNotConfigured
	}
	client := mg.NewMailgun(domain, apiKey)
	if apiBase != "" {
		client.SetAPIBase(apiBase)
	}
	return &Mailgun{Sender: sender, Timeout: 10 * time.Second, client: client}, nil
}

// Send delivers one message. html is optional.
func (m *Mailgun) Send(ctx context.Context, to, subject, text, html string) error {
	msg := m.client.NewMessage(m.Sender, subject, text, to)
	if html != "" {
		msg.SetHtml(html)
	}
	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()
	_, _, err := m.client.Send(ctx, msg)
	return err
}
