package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"regexp"
	"strings"
	"time"

	"github.com/vaultwatch/vaultwatch/internal/inventory"
	"github.com/vaultwatch/vaultwatch/internal/logging"
)

// headerPattern matches common email header injection patterns.
var headerPattern = regexp.MustCompile(`(?i)\b(bcc|cc|to|from|subject|reply-to|x-[a-z0-9-]+)\s*:`)

// Notifier is the notification transport contract consumed by the alert
// pipeline. One call carries the full list of a recipient's eligible records.
type Notifier interface {
	SendAlertEmail(ctx context.Context, recipient string, objects []inventory.KeyVaultObject) error
}

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	// Host is the SMTP server hostname.
	Host string

	// Port is the SMTP server port.
	Port int

	// Username for SMTP authentication (optional).
	Username string

	// Password for SMTP authentication (optional).
	Password string

	// From is the sender email address.
	From string
}

// SMTPSendFunc is the function signature for sending emails via SMTP.
type SMTPSendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends expiration alerts via email.
type SMTPNotifier struct {
	config     SMTPConfig
	smtpSender SMTPSendFunc
}

// NewSMTPNotifier creates an email notifier.
func NewSMTPNotifier(config SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{
		config:     config,
		smtpSender: smtp.SendMail,
	}
}

// WithSender overrides the SMTP send function (for testing).
func (n *SMTPNotifier) WithSender(sender SMTPSendFunc) *SMTPNotifier {
	n.smtpSender = sender
	return n
}

// Validate checks if the notifier configuration is valid.
func (n *SMTPNotifier) Validate() error {
	if n.config.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if n.config.Port == 0 {
		return fmt.Errorf("SMTP port is required")
	}
	if n.config.From == "" {
		return fmt.Errorf("from address is required")
	}
	return nil
}

// SendAlertEmail sends one expiration alert carrying all of the recipient's
// eligible objects.
func (n *SMTPNotifier) SendAlertEmail(ctx context.Context, recipient string, objects []inventory.KeyVaultObject) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(recipient, "\r\n") || headerPattern.MatchString(recipient) {
		return fmt.Errorf("invalid recipient address: %q", recipient)
	}

	msg := n.buildMessage(recipient, objects)
	addr := fmt.Sprintf("%s:%d", n.config.Host, n.config.Port)

	var auth smtp.Auth
	if n.config.Username != "" {
		auth = smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
	}

	if err := n.smtpSender(addr, auth, n.config.From, []string{recipient}, []byte(msg)); err != nil {
		// Server replies can echo auth material; scrub it before the error
		// reaches logs or run stats.
		return fmt.Errorf("failed to send email: %s",
			logging.Redact(err.Error(), []string{n.config.Password}))
	}
	return nil
}

// buildMessage creates a plain-text alert listing every expiring object.
func (n *SMTPNotifier) buildMessage(recipient string, objects []inventory.KeyVaultObject) string {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("From: %s\r\n", n.config.From))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", recipient))
	buf.WriteString(fmt.Sprintf("Subject: Key Vault expiration alert: %d object(s) expiring soon\r\n", len(objects)))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	buf.WriteString("\r\n")

	buf.WriteString("The following Key Vault objects are approaching expiration:\r\n\r\n")
	for _, obj := range objects {
		buf.WriteString(fmt.Sprintf("  - %s (%s) in vault %s", obj.ObjectName, obj.ObjectType, obj.VaultName))
		if obj.DaysRemaining != nil {
			buf.WriteString(fmt.Sprintf(": %d day(s) remaining", *obj.DaysRemaining))
		}
		if obj.ExpirationDate != nil {
			buf.WriteString(fmt.Sprintf(", expires %s", obj.ExpirationDate.UTC().Format(time.RFC3339)))
		}
		if obj.Issuer != "" {
			buf.WriteString(fmt.Sprintf(", issuer %s", obj.Issuer))
		}
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\nRotate or renew these objects before they expire.\r\n")

	return buf.String()
}
