package notifications

import (
	"crypto/tls"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vibotaj/tracehub/internal/models"
)

// Mailer delivers one rendered notification email. Implementations
// must be safe for concurrent use.
type Mailer interface {
	Send(to []string, subject, htmlBody, textBody string) error
}

// SMTPConfig holds the delivery endpoint. Port 465 uses implicit TLS,
// everything else attempts STARTTLS before falling back to plaintext
// for localhost relays.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends multipart text+HTML mail over SMTP.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(to []string, subject, htmlBody, textBody string) error {
	if len(to) == 0 {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	msg := buildMessage(m.cfg.From, to, subject, htmlBody, textBody)

	if m.cfg.Port == 465 {
		return m.sendImplicitTLS(addr, to, msg)
	}
	return m.sendStartTLS(addr, to, msg)
}

func (m *SMTPMailer) sendStartTLS(addr string, to []string, msg []byte) error {
	c, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	return m.submit(c, to, msg)
}

func (m *SMTPMailer) sendImplicitTLS(addr string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.cfg.Host})
	if err != nil {
		return fmt.Errorf("dial smtps %s: %w", addr, err)
	}
	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	return m.submit(c, to, msg)
}

func (m *SMTPMailer) submit(c *smtp.Client, to []string, msg []byte) error {
	if err := c.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	return c.Quit()
}

// buildMessage assembles a multipart/alternative message so clients
// without HTML rendering still get the text part.
func buildMessage(from string, to []string, subject, htmlBody, textBody string) []byte {
	boundary := "tracehub-" + fmt.Sprintf("%d", time.Now().UnixNano())
	var sb strings.Builder
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	sb.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: multipart/alternative; boundary=\"" + boundary + "\"\r\n")
	sb.WriteString("\r\n")

	sb.WriteString("--" + boundary + "\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	sb.WriteString(textBody)
	sb.WriteString("\r\n\r\n")

	sb.WriteString("--" + boundary + "\r\n")
	sb.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n\r\n")
	sb.WriteString(htmlBody)
	sb.WriteString("\r\n\r\n")

	sb.WriteString("--" + boundary + "--\r\n")
	return []byte(sb.String())
}

// LogMailer is the no-SMTP fallback used in development: it logs the
// delivery instead of sending it.
type LogMailer struct{}

func (LogMailer) Send(to []string, subject, _, textBody string) error {
	log.Info().
		Strs("to", to).
		Str("subject", subject).
		Str("body", textBody).
		Msg("Email delivery (log provider)")
	return nil
}

var _ Mailer = (*SMTPMailer)(nil)
var _ Mailer = LogMailer{}

// RenderEmail produces the subject and both bodies for one
// notification.
func RenderEmail(n *models.Notification) (subject, htmlBody, textBody string) {
	subject = "[TraceHub] " + n.Title
	textBody = n.Title
	if n.Body != "" {
		textBody += "\n\n" + n.Body
	}
	var hb strings.Builder
	hb.WriteString(`<div style="font-family:Arial,sans-serif;color:#2c3e50">`)
	hb.WriteString(`<h2 style="color:#154360">` + htmlEscape(n.Title) + `</h2>`)
	if n.Body != "" {
		hb.WriteString(`<p>` + htmlEscape(n.Body) + `</p>`)
	}
	if n.ResourceType != "" && n.ResourceID != "" {
		hb.WriteString(`<p style="color:#7f8c8d;font-size:12px">` +
			htmlEscape(n.ResourceType) + " " + htmlEscape(n.ResourceID) + `</p>`)
	}
	hb.WriteString(`</div>`)
	return subject, hb.String(), textBody
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
