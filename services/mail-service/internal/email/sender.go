package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

type Sender interface {
	Send(to string, subject string, body string) error
}

// SMTPSender delivers mail over unauthenticated SMTP, which is what the
// local Mailpit relay expects. From defaults to the petshop no-reply
// address when left blank.
type SMTPSender struct {
	addr string
	from string
}

func NewSMTPSender(addr string, from string) *SMTPSender {
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@petshop.local"
	}
	return &SMTPSender{
		addr: strings.TrimSpace(addr),
		from: from,
	}
}

func (s *SMTPSender) Send(to string, subject string, body string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return smtp.SendMail(s.addr, nil, s.from, []string{to}, []byte(b.String()))
}
