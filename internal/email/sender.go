package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Sender описывает отправку email-уведомлений. Содержимое писем — зона
// ответственности вызывающего; транспорт взаимозаменяем.
type Sender interface {
	Send(to, subject, body string) error
}

// SMTPSender отправляет письма через обычный SMTP с PLAIN авторизацией.
type SMTPSender struct {
	host     string
	port     string
	username string
	password string
	from     string
}

// NewSMTPSender создаёт SMTP отправитель.
func NewSMTPSender(host, port, username, password, from string) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

// Send отправляет письмо одному получателю.
func (s *SMTPSender) Send(to, subject, body string) error {
	if s.host == "" {
		return fmt.Errorf("email: SMTP хост не настроен")
	}

	var msg strings.Builder
	msg.WriteString("From: " + s.from + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	if err := smtp.SendMail(s.host+":"+s.port, auth, s.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("email: отправка не удалась: %w", err)
	}

	return nil
}
