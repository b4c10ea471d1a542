package mailer

import (
	"fmt"
	"net/smtp"
	"os"
	"strings"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/utils"
)

// Sender delivers one rendered message to one recipient. Swappable so tests
// and environments without SMTP run against a no-op.
type Sender func(to, subject, body string) error

func smtpSender(to, subject, body string) error {
	host := strings.TrimSpace(os.Getenv("SMTP_HOST"))
	if host == "" {
		return fmt.Errorf("SMTP_HOST is empty")
	}
	port := strings.TrimSpace(os.Getenv("SMTP_PORT"))
	if port == "" {
		port = "587"
	}
	from := strings.TrimSpace(os.Getenv("SMTP_FROM"))
	user := strings.TrimSpace(os.Getenv("SMTP_USER"))
	pass := os.Getenv("SMTP_PASSWORD")

	msg := []byte("From: " + from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" + body + "\r\n")

	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, pass, host)
	}
	return smtp.SendMail(host+":"+port, auth, from, []string{to}, msg)
}

// Send renders the template with data and dispatches it to every recipient
// asynchronously. Per-recipient failures are logged, never raised: mail is a
// notification channel, not part of any transaction's contract.
func Send(subject, tmpl string, data map[string]interface{}, recipients []string) {
	SendWith(smtpSender, subject, tmpl, data, recipients)
}

func SendWith(sender Sender, subject, tmpl string, data map[string]interface{}, recipients []string) {
	logger := config.GetLogger()

	body, err := utils.ExecTemplate(tmpl, data)
	if err != nil {
		config.LogError(logger, "mailer", "Send", "template render failed", subject, err)
		return
	}

	go func() {
		for _, to := range recipients {
			if !utils.IsValidEmail(to) {
				config.LogError(logger, "mailer", "Send", "invalid recipient skipped", to, nil)
				continue
			}
			if err := sender(to, subject, body); err != nil {
				config.LogError(logger, "mailer", "Send", "delivery failed", to, err)
			}
		}
	}()
}
