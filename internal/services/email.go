package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/fuseproject/fuse/backend/internal/config"
	"github.com/fuseproject/fuse/backend/pkg/logger"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Mailer sends one HTML message to a list of recipients.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, htmlBody string) error
}

// EmailService delivers mail through SMTP or SendGrid.
type EmailService struct {
	cfg *config.MailConfig
}

func NewEmailService(cfg *config.MailConfig) *EmailService {
	return &EmailService{cfg: cfg}
}

func (s *EmailService) Enabled() bool {
	return s != nil && s.cfg.Enabled
}

func (s *EmailService) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	if !s.Enabled() || len(to) == 0 {
		return nil
	}

	var err error
	switch s.cfg.Provider {
	case "sendgrid":
		err = s.sendSendGrid(ctx, to, subject, htmlBody)
	case "smtp", "":
		err = s.sendSMTP(to, subject, htmlBody)
	default:
		err = fmt.Errorf("unknown mail provider %q", s.cfg.Provider)
	}
	if err != nil {
		return err
	}

	logger.Debug().Strs("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

func (s *EmailService) sendSendGrid(ctx context.Context, to []string, subject, htmlBody string) error {
	if s.cfg.SendGridAPIKey == "" {
		return fmt.Errorf("sendgrid api key is not configured")
	}

	from := mail.NewEmail(s.cfg.FromName, s.cfg.From)
	client := sendgrid.NewSendClient(s.cfg.SendGridAPIKey)

	for _, addr := range to {
		message := mail.NewSingleEmail(from, subject, mail.NewEmail("", addr), plainText(htmlBody), htmlBody)
		response, err := client.SendWithContext(ctx, message)
		if err != nil {
			return fmt.Errorf("sendgrid send to %s: %w", addr, err)
		}
		if response.StatusCode >= 400 {
			return fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
		}
	}
	return nil
}

func (s *EmailService) sendSMTP(to []string, subject, htmlBody string) error {
	from := s.cfg.From
	if from == "" {
		from = s.cfg.SMTPUsername
	}

	var message strings.Builder
	fromHeader := from
	if s.cfg.FromName != "" {
		fromHeader = fmt.Sprintf("%s <%s>", s.cfg.FromName, from)
	}
	fmt.Fprintf(&message, "From: %s\r\n", fromHeader)
	fmt.Fprintf(&message, "To: %s\r\n", strings.Join(to, ","))
	fmt.Fprintf(&message, "Subject: %s\r\n", subject)
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	message.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" && s.cfg.SMTPPassword != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}

	if !s.cfg.SMTPUseTLS {
		return smtp.SendMail(addr, auth, from, to, []byte(message.String()))
	}

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.cfg.SMTPHost})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.SMTPHost)
	if err != nil {
		return err
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(message.String())); err != nil {
		return err
	}
	return w.Close()
}

// plainText strips tags for the text/plain alternative.
func plainText(html string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(sb.String())
}
