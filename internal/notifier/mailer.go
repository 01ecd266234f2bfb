package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"log"
	"net"
	"net/smtp"
	"strings"
	"time"
)

const (
	smtpHost = "smtp.gmail.com"
	smtpAddr = "smtp.gmail.com:587"
)

var verifyTmpl = template.Must(template.New("verify").Parse(
	`<p>Your verification code is <b>{{.Code}}</b>.</p>` +
		`<p>Enter it in the app to confirm your email address.</p>`))

var resetTmpl = template.Must(template.New("reset").Parse(
	`<p>Your password reset code is <b>{{.Code}}</b>.</p>` +
		`<p>The code expires at {{.ExpiresAt}}. If you did not ask for a reset, ignore this mail.</p>`))

// Mailer sends codes over SMTP with STARTTLS.
type Mailer struct {
	gmailUser    string
	gmailAppPass string
	mailFrom     string
	mailFromName string
}

func NewMailer(gmailUser, gmailAppPass, mailFrom, mailFromName string) *Mailer {
	return &Mailer{
		gmailUser:    gmailUser,
		gmailAppPass: gmailAppPass,
		mailFrom:     mailFrom,
		mailFromName: mailFromName,
	}
}

func (m *Mailer) SendVerificationCode(ctx context.Context, _ uint, email, code string) error {
	var buf bytes.Buffer
	if err := verifyTmpl.Execute(&buf, map[string]string{"Code": code}); err != nil {
		return err
	}
	return m.send(ctx, email, "Verify your email", buf.String())
}

func (m *Mailer) SendResetCode(ctx context.Context, _ uint, email, code, expiresAt string) error {
	var buf bytes.Buffer
	if err := resetTmpl.Execute(&buf, map[string]string{"Code": code, "ExpiresAt": expiresAt}); err != nil {
		return err
	}
	return m.send(ctx, email, "Reset your password", buf.String())
}

func (m *Mailer) send(ctx context.Context, to, subject, htmlBody string) error {
	fromHeader := fmt.Sprintf("%s <%s>", m.mailFromName, m.mailFrom)

	msg := strings.Join([]string{
		fmt.Sprintf("From: %s", fromHeader),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
		"",
		htmlBody,
	}, "\r\n")

	log.Printf("[MAIL] smtp sending to=%s via=%s", to, smtpAddr)

	if err := m.sendSMTP(ctx, to, []byte(msg)); err != nil {
		return err
	}

	log.Printf("[MAIL] sent to=%s", to)
	return nil
}

func (m *Mailer) sendSMTP(ctx context.Context, to string, msg []byte) error {
	dialer := net.Dialer{Timeout: 8 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", smtpAddr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(15 * time.Second))
	}

	c, err := smtp.NewClient(conn, smtpHost)
	if err != nil {
		return err
	}
	defer func() { _ = c.Quit() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: smtpHost}); err != nil {
			return err
		}
	}

	auth := smtp.PlainAuth("", m.gmailUser, m.gmailAppPass, smtpHost)
	if err := c.Auth(auth); err != nil {
		return err
	}

	if err := c.Mail(m.mailFrom); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
