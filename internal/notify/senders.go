package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/domodwyer/mailyak/v3"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sdeal/internal/common"
	"github.com/noah-isme/backend-sdeal/internal/resilience"
)

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Retry    resilience.RetryPolicy
}

// Send implements common.EmailSender. Transient failures are retried through
// s.Retry; 5xx replies from the relay are not.
func (s SMTPSender) Send(ctx context.Context, msg common.Email) error {
	if s.Host == "" {
		return errors.New("notify: smtp host not configured")
	}
	port := s.Port
	if port == 0 {
		port = 587
	}
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	mail := mailyak.New(net.JoinHostPort(s.Host, strconv.Itoa(port)), auth)
	name, addr := splitAddress(s.From)
	mail.From(addr)
	if name != "" {
		mail.FromName(name)
	}
	mail.To(msg.To)
	if msg.ReplyTo != "" {
		mail.ReplyTo(msg.ReplyTo)
	}
	mail.Subject(msg.Subject)
	mail.HTML().Set(msg.HTML)
	err := s.Retry.Do(ctx, func(context.Context) error {
		if err := mail.Send(); err != nil {
			var reply *textproto.Error
			if errors.As(err, &reply) && reply.Code >= 500 {
				return resilience.Permanent(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// splitAddress splits `Name <addr>` into its parts.
func splitAddress(from string) (string, string) {
	from = strings.TrimSpace(from)
	open := strings.LastIndex(from, "<")
	if open < 0 || !strings.HasSuffix(from, ">") {
		return "", from
	}
	return strings.TrimSpace(from[:open]), from[open+1 : len(from)-1]
}

// ResendSender delivers mail through the Resend HTTP API.
type ResendSender struct {
	APIKey  string
	BaseURL string
	From    string
	Client  resilience.HTTPClient
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

// Send implements common.EmailSender.
func (s ResendSender) Send(ctx context.Context, msg common.Email) error {
	if s.APIKey == "" {
		return errors.New("notify: resend api key not configured")
	}
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = "https://api.resend.com"
	}
	body, err := json.Marshal(resendRequest{From: s.From, To: []string{msg.To}, Subject: msg.Subject, HTML: msg.HTML, ReplyTo: msg.ReplyTo})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/emails", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("resend send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("resend send: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
		// 429 and 5xx were already retried by the client; anything left is a
		// rejection of this message and will not succeed on redelivery.
		return resilience.Permanent(err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	Logger zerolog.Logger
}

// Send implements common.EmailSender.
func (s LogSender) Send(_ context.Context, msg common.Email) error {
	s.Logger.Info().Str("to", msg.To).Str("reply_to", msg.ReplyTo).Str("subject", msg.Subject).Int("html_bytes", len(msg.HTML)).Msg("email (log provider)")
	return nil
}

// SenderConfig selects and configures the outbound mail provider.
type SenderConfig struct {
	Provider     string
	From         string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	ResendAPIKey string
	ResendURL    string
	// HTTP carries the breaker and retry budget; the smtp provider reuses them.
	HTTP         resilience.HTTPClient
	Logger       zerolog.Logger
}

// NewSender returns the sender for cfg.Provider.
func NewSender(cfg SenderConfig) (common.EmailSender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "log":
		return LogSender{Logger: cfg.Logger}, nil
	case "smtp":
		if cfg.SMTPHost == "" {
			return nil, errors.New("notify: SMTP_HOST is required for the smtp provider")
		}
		return SMTPSender{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.From,
			Retry: resilience.RetryPolicy{
				Breaker:     cfg.HTTP.Breaker,
				BaseBackoff: cfg.HTTP.BaseBackoff,
				MaxAttempts: cfg.HTTP.MaxAttempts,
				Jitter:      cfg.HTTP.Jitter,
			},
		}, nil
	case "resend":
		if cfg.ResendAPIKey == "" {
			return nil, errors.New("notify: RESEND_API_KEY is required for the resend provider")
		}
		return ResendSender{APIKey: cfg.ResendAPIKey, BaseURL: cfg.ResendURL, From: cfg.From, Client: cfg.HTTP}, nil
	default:
		return nil, fmt.Errorf("notify: unknown mail provider %q", cfg.Provider)
	}
}
