package services

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cibics/tracking-backend/internal/config"
)

// AlertService sends email-captured notifications over SMTP. With no host
// configured it degrades to logging the alert, which keeps development
// environments mail-server free.
type AlertService struct {
	cfg    config.SMTPConfig
	logger *logrus.Logger
}

// NewAlertService creates a new alert service
func NewAlertService(cfg config.SMTPConfig, logger *logrus.Logger) *AlertService {
	return &AlertService{cfg: cfg, logger: logger}
}

// SendEmailCaptured delivers one captured-email alert to the configured
// recipients. Failures are logged, never returned: delivery is best effort
// and must not affect the mutation that triggered it.
func (s *AlertService) SendEmailCaptured(event EmailCapturedEvent, recipients []string) {
	subject := fmt.Sprintf("Email Captured: %s", alertSubjectLabel(event))
	body := buildAlertBody(event)

	entry := s.logger.WithFields(logrus.Fields{
		"record_id":  event.RecordID,
		"recipients": len(recipients),
	})

	if s.cfg.Host == "" {
		entry.WithField("subject", subject).Info("SMTP not configured, alert logged only")
		return
	}
	if len(recipients) == 0 {
		entry.Info("No alert recipients configured, skipping email")
		return
	}

	if err := s.send(subject, body, recipients); err != nil {
		entry.WithError(err).Error("Failed to send email captured alert")
		return
	}

	entry.Info("Email captured alert sent")
}

func (s *AlertService) send(subject, body string, recipients []string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.cfg.FromEmail))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(recipients, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(body)

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to dial smtp server: %w", err)
	}
	defer client.Close()

	if s.cfg.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
				return fmt.Errorf("failed to start tls: %w", err)
			}
		}
	}

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := client.Mail(s.cfg.FromEmail); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to add recipient %s: %w", rcpt, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open message body: %w", err)
	}
	if _, err := writer.Write([]byte(msg.String())); err != nil {
		return fmt.Errorf("failed to write message body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close message body: %w", err)
	}

	return client.Quit()
}

// alertSubjectLabel picks the most specific record identifier available.
func alertSubjectLabel(event EmailCapturedEvent) string {
	if event.ShortName != "" {
		return event.ShortName
	}
	if event.Organization != "" {
		return event.Organization
	}
	return fmt.Sprintf("Record #%d", event.RecordID)
}

func buildAlertBody(event EmailCapturedEvent) string {
	lines := []struct {
		label, value string
	}{
		{"Record ID", fmt.Sprintf("%d", event.RecordID)},
		{"Source Row", fmt.Sprintf("%d", event.SourceRow)},
		{"Short Name", event.ShortName},
		{"Organization", event.Organization},
		{"State", event.State},
		{"Assignee", event.AssigneeName},
		{"Customer Name", event.CustomerName},
		{"Mobile No", event.MobileNo},
		{"Client Email", event.ClientEmail},
	}

	var body strings.Builder
	body.WriteString("A client email was captured on a tracked record.\r\n\r\n")
	for _, line := range lines {
		if line.value == "" {
			continue
		}
		body.WriteString(fmt.Sprintf("%s: %s\r\n", line.label, line.value))
	}
	return body.String()
}
