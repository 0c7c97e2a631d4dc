package mailer

import (
	"bytes"
	"html/template"
)

const welcomeSubject = "Welcome to LaikoStar - Your Account Details"

var welcomeTmpl = template.Must(template.New("welcome").Parse(`<p>Dear {{.FullName}},</p>
<p>Thank you for signing up with LaikoStar. Your account has been created.</p>
<p>Username: <strong>{{.Username}}</strong><br>
Password: <strong>{{.Password}}</strong></p>
<p>Please change your password after your first login.</p>
<p>Best regards,<br>The LaikoStar Team</p>`))

type welcomeData struct {
	FullName string
	Username string
	Password string
}

func WelcomeMessage(to, fullName, username, password string) (Message, error) {
	var buf bytes.Buffer
	err := welcomeTmpl.Execute(&buf, welcomeData{FullName: fullName, Username: username, Password: password})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: welcomeSubject, Body: buf.String()}, nil
}

// SendCredentials renders the welcome mail and queues it.
func (d *Dispatcher) SendCredentials(to, fullName, username, password string) error {
	msg, err := WelcomeMessage(to, fullName, username, password)
	if err != nil {
		return err
	}
	return d.Enqueue(msg)
}
