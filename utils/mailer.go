package utils

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"gopkg.in/gomail.v2"

	"teamgrid/config"
)

type EmailData struct {
	Subject   string
	To        []string
	Template  string
	Data      interface{}
	Year      int
	FromName  string
	FromEmail string
}

// Embedded email templates
var emailTemplates = map[string]string{
	"team_invitation": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .content { margin: 20px 0; }
        .button { display: inline-block; padding: 10px 20px; background-color: #3498db; color: white; text-decoration: none; border-radius: 4px; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>Team Invitation</h2>
    </div>

    <div class="content">
        <p>Hello,</p>
        <p>You have been invited to join the <strong>{{.TeamName}}</strong> team. Click the button below to accept:</p>

        <p style="text-align: center;">
            <a href="{{.ActionURL}}" class="button">Accept Invitation</a>
        </p>

        <p>This link will expire in 15 minutes. If you weren't expecting this invitation, you can safely ignore this email.</p>

        <p>Or copy and paste this link into your browser:<br>
        <small>{{.ActionURL}}</small></p>
    </div>

    <div class="footer">
        <p>© {{.Year}} Teamgrid. All rights reserved.</p>
    </div>
</body>
</html>`,

	"welcome": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .content { margin: 20px 0; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>Welcome to Teamgrid</h2>
    </div>

    <div class="content">
        <p>Hi {{.Name}},</p>
        <p>Your account is ready. We created a personal team for you to get started, and you can invite teammates at any time.</p>
    </div>

    <div class="footer">
        <p>© {{.Year}} Teamgrid. All rights reserved.</p>
    </div>
</body>
</html>`,
}

func SendEmail(data EmailData) error {
	if data.FromEmail == "" {
		data.FromEmail = config.AppConfig.FromEmail
	}
	if data.FromName == "" {
		data.FromName = config.AppConfig.FromName
	}
	if data.Year == 0 {
		data.Year = time.Now().Year()
	}

	tmplContent, ok := emailTemplates[data.Template]
	if !ok {
		return fmt.Errorf("template '%s' not found", data.Template)
	}

	tmpl, err := template.New("email").Parse(tmplContent)
	if err != nil {
		return fmt.Errorf("error parsing template: %v", err)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data.Data); err != nil {
		return fmt.Errorf("error executing template: %v", err)
	}

	smtpPort, err := strconv.Atoi(config.AppConfig.SMTPPort)
	if err != nil {
		return fmt.Errorf("invalid SMTP_PORT: %v", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", data.FromName, data.FromEmail))
	m.SetHeader("To", data.To...)
	m.SetHeader("Subject", data.Subject)
	m.SetBody("text/html", body.String())

	d := gomail.NewDialer(
		config.AppConfig.SMTPHost,
		smtpPort,
		config.AppConfig.SMTPUsername,
		config.AppConfig.SMTPPassword,
	)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("error sending email: %v", err)
	}
	return nil
}

// SendTeamInvitationEmail mails the signed acceptance link to the invitee.
func SendTeamInvitationEmail(email, teamName, actionURL string) error {
	return SendEmail(EmailData{
		Subject:  "Team Invitation - You are invited to join our team!",
		To:       []string{email},
		Template: "team_invitation",
		Data: struct {
			Subject   string
			TeamName  string
			ActionURL string
			Year      int
		}{
			Subject:   "Team Invitation",
			TeamName:  teamName,
			ActionURL: actionURL,
			Year:      time.Now().Year(),
		},
	})
}

// SendWelcomeEmail mails the post-registration greeting.
func SendWelcomeEmail(email, name string) error {
	return SendEmail(EmailData{
		Subject:  "Welcome to Teamgrid",
		To:       []string{email},
		Template: "welcome",
		Data: struct {
			Subject string
			Name    string
			Year    int
		}{
			Subject: "Welcome",
			Name:    name,
			Year:    time.Now().Year(),
		},
	})
}
