package notification

import (
	"bytes"
	"fmt"
	"html/template"
)

const DefaultSubject = "Complete Your KYC Verification"

const defaultBody = `<p>Hello <strong>{{.Greeting}}</strong>,</p>
<p>Please complete your KYC verification by clicking the link below:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
`

type templateData struct {
	Greeting string
	Link     string
}

type Template struct {
	subject string
	body    *template.Template
}

// NewTemplate parses body as an html/template. Empty arguments select the
// defaults. The template sees {{.Greeting}} and {{.Link}}.
func NewTemplate(subject, body string) (*Template, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if body == "" {
		body = defaultBody
	}

	tmpl, err := template.New("verification-email").Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse email template: %w", err)
	}
	return &Template{subject: subject, body: tmpl}, nil
}

// Render builds the verification message. The greeting is the applicant's
// name, or the address when no name was submitted.
func (t *Template) Render(to, name, link string) (Message, error) {
	greeting := name
	if greeting == "" {
		greeting = to
	}

	var buf bytes.Buffer
	if err := t.body.Execute(&buf, templateData{Greeting: greeting, Link: link}); err != nil {
		return Message{}, fmt.Errorf("failed to render email template: %w", err)
	}

	return Message{
		To:       to,
		Subject:  t.subject,
		HTMLBody: buf.String(),
	}, nil
}
