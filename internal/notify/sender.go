package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// Sender is the delivery collaborator contract. Implementations transport
// one message; marking tasks sent stays with the dispatcher.
type Sender interface {
	Send(ctx context.Context, channel Channel, recipient, subject, body string) error
}

// SMTPSender delivers email tasks over SMTP.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (s *SMTPSender) Send(ctx context.Context, channel Channel, recipient, subject, body string) error {
	if channel != ChannelEmail {
		return fmt.Errorf("smtp sender cannot deliver channel %q", channel)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// WebhookSMSSender posts SMS tasks to a generic gateway webhook.
type WebhookSMSSender struct {
	url    string
	client *http.Client
}

func NewWebhookSMSSender(url string) *WebhookSMSSender {
	return &WebhookSMSSender{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *WebhookSMSSender) Send(ctx context.Context, channel Channel, recipient, subject, body string) error {
	if channel != ChannelSMS {
		return fmt.Errorf("sms sender cannot deliver channel %q", channel)
	}

	payload, err := json.Marshal(map[string]string{
		"to":      recipient,
		"message": body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms webhook returned %d", resp.StatusCode)
	}
	return nil
}

// ConsoleSender logs messages instead of delivering them. Dev fallback when
// no SMTP host or SMS gateway is configured.
type ConsoleSender struct {
	log zerolog.Logger
}

func NewConsoleSender(log zerolog.Logger) *ConsoleSender {
	return &ConsoleSender{log: log.With().Str("component", "console-sender").Logger()}
}

func (s *ConsoleSender) Send(ctx context.Context, channel Channel, recipient, subject, body string) error {
	s.log.Info().
		Str("channel", string(channel)).
		Str("recipient", recipient).
		Str("subject", subject).
		Str("body", body).
		Msg("notification (console)")
	return nil
}

// ChannelRouter dispatches per channel, falling back when a channel has no
// configured sender.
type ChannelRouter struct {
	senders  map[Channel]Sender
	fallback Sender
}

func NewChannelRouter(fallback Sender) *ChannelRouter {
	return &ChannelRouter{
		senders:  make(map[Channel]Sender),
		fallback: fallback,
	}
}

func (r *ChannelRouter) Register(channel Channel, sender Sender) {
	r.senders[channel] = sender
}

func (r *ChannelRouter) Send(ctx context.Context, channel Channel, recipient, subject, body string) error {
	if s, ok := r.senders[channel]; ok {
		return s.Send(ctx, channel, recipient, subject, body)
	}
	return r.fallback.Send(ctx, channel, recipient, subject, body)
}
