// Package email implements the fallback OTP delivery channel: a plain
// net/smtp client that sends one message per call to a single configured
// relay. Grounded on the deliverToHost/classifyError shape of
// fenilsonani-email-server's internal/smtp/delivery/delivery.go, trimmed
// from an MX-resolving outbound mail-transfer-agent down to a single
// relay client — this channel forwards to one SMTP server (the
// operator's own relay or provider), it is not an MTA itself.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/cellbridge/sms-bridge/internal/cryptobox"
	"github.com/cellbridge/sms-bridge/internal/dispatch"
	"github.com/cellbridge/sms-bridge/internal/domain"
	applog "github.com/cellbridge/sms-bridge/pkg/log"
)

const component = "dispatch.email"

// Config configures a Dispatcher.
type Config struct {
	Host string
	Port int
	User string
	Pass string
	From string
	To   string

	ConnectTimeout time.Duration
	VerifyTLS      bool
}

// Dispatcher sends OTP notifications over SMTP as the fallback channel.
type Dispatcher struct {
	cfg Config
	box *cryptobox.Box
}

// New builds a Dispatcher from cfg.
func New(cfg Config, box *cryptobox.Box) *Dispatcher {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Dispatcher{cfg: cfg, box: box}
}

// Send decrypts msg's body and relays it over SMTP in a single attempt.
func (d *Dispatcher) Send(ctx context.Context, msg domain.Message) dispatch.Outcome {
	plaintext, err := d.box.Decrypt(msg.Body)
	if err != nil {
		return dispatch.TerminalOutcome("invalid_token", err)
	}

	subject := fmt.Sprintf("OTP from %s", msg.Sender)
	body := string(plaintext)
	data := buildMessage(d.cfg.From, d.cfg.To, subject, body)

	addr := net.JoinHostPort(d.cfg.Host, fmt.Sprintf("%d", d.cfg.Port))

	dialer := &net.Dialer{Timeout: d.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		applog.WithComponentAndFields(component, applog.Fields{"sms_id": msg.SMSID, "error": err}).Warn("smtp dial failed")
		return dispatch.TransientOutcome("smtp_dial_failed", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(d.cfg.ConnectTimeout))

	client, err := smtp.NewClient(conn, d.cfg.Host)
	if err != nil {
		return dispatch.TransientOutcome("smtp_client_init_failed", err)
	}
	defer client.Close()

	if err := client.Hello("sms-bridge"); err != nil {
		return classify(err)
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{ServerName: d.cfg.Host, InsecureSkipVerify: !d.cfg.VerifyTLS}
		if err := client.StartTLS(tlsConfig); err != nil {
			return dispatch.TransientOutcome("starttls_failed", err)
		}
	}

	if d.cfg.User != "" {
		auth := smtp.PlainAuth("", d.cfg.User, d.cfg.Pass, d.cfg.Host)
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return dispatch.TerminalOutcome("smtp_auth_failed", err)
			}
		}
	}

	if err := client.Mail(d.cfg.From); err != nil {
		return classify(err)
	}
	if err := client.Rcpt(d.cfg.To); err != nil {
		return classify(err)
	}

	w, err := client.Data()
	if err != nil {
		return classify(err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return dispatch.TransientOutcome("smtp_data_write_failed", err)
	}
	if err := w.Close(); err != nil {
		return classify(err)
	}

	_ = client.Quit()

	applog.WithComponentAndFields(component, applog.Fields{"sms_id": msg.SMSID}).Info("email delivery succeeded")
	return dispatch.DeliveredOutcome()
}

func buildMessage(from, to, subject, body string) []byte {
	var sb strings.Builder
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + subject + "\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	sb.WriteString("\r\n")
	return []byte(sb.String())
}

// classify maps an SMTP reply error to a dispatch.Outcome: 5xx replies are
// terminal (the recipient/credentials won't improve on retry), everything
// else — including 4xx replies and connection-level errors — is
// transient. Grounded on classifyError/isPermanentError in
// fenilsonani-email-server's delivery.go.
func classify(err error) dispatch.Outcome {
	if err == nil {
		return dispatch.DeliveredOutcome()
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code >= 500 {
		return dispatch.TerminalOutcome("smtp_permanent_failure", err)
	}

	errStr := err.Error()
	if strings.Contains(errStr, "550") || strings.Contains(errStr, "551") ||
		strings.Contains(errStr, "552") || strings.Contains(errStr, "553") ||
		strings.Contains(errStr, "554") {
		return dispatch.TerminalOutcome("smtp_permanent_failure", err)
	}

	return dispatch.TransientOutcome("smtp_temporary_failure", err)
}
