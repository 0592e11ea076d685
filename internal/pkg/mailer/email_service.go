package mailer

import (
	"fmt"
	"html"
	"regexp"

	"gopkg.in/gomail.v2"
)

type IEmailService interface {
	SendNotification(toEmail, title, message, link string) error
}

type emailService struct {
	dialer      *gomail.Dialer
	senderEmail string
	senderName  string
	frontendURL string
}

func NewEmailService(host string, port int, username, password, senderName, frontendURL string) IEmailService {
	return &emailService{
		dialer:      gomail.NewDialer(host, port, username, password),
		senderEmail: username,
		senderName:  senderName,
		frontendURL: frontendURL,
	}
}

func (s *emailService) SendNotification(toEmail, title, message, link string) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.senderEmail, s.senderName)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", title)
	m.SetBody("text/html", RenderNotificationHTML(title, message, s.frontendURL+link))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send notification email to %s: %w", toEmail, err)
	}
	return nil
}

var boldPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)

// RenderNotificationHTML escapes message and turns **bold** markers into
// <strong> tags.
func RenderNotificationHTML(title, message, url string) string {
	body := boldPattern.ReplaceAllString(html.EscapeString(message), "<strong>$1</strong>")
	return fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>%s</h2>
			<p>%s</p>
			<a href="%s" style="background-color: #007BFF; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px; display: inline-block;">Open</a>
		</div>
	`, html.EscapeString(title), body, html.EscapeString(url))
}
