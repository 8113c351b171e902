package mailer

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"os"
	texttemplate "text/template"
)

//go:embed templates/*.tmpl
var defaultTemplates embed.FS

const (
	defaultHTMLTemplate = "templates/approved.html.tmpl"
	defaultTextTemplate = "templates/approved.txt.tmpl"
)

type templateData struct {
	TeamName string
}

// Renderer builds approval messages. HTML output is escaped by html/template
type Renderer struct {
	subject string
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// NewRenderer loads templates from the given paths; empty path -> built-in template
func NewRenderer(subject, htmlPath, textPath string) (*Renderer, error) {
	htmlSrc, err := readTemplate(htmlPath, defaultHTMLTemplate)
	if err != nil {
		return nil, err
	}
	textSrc, err := readTemplate(textPath, defaultTextTemplate)
	if err != nil {
		return nil, err
	}

	h, err := htmltemplate.New("approved.html").Option("missingkey=error").Parse(htmlSrc)
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	t, err := texttemplate.New("approved.txt").Option("missingkey=error").Parse(textSrc)
	if err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}

	return &Renderer{subject: subject, html: h, text: t}, nil
}

func (r *Renderer) Render(recipient, teamName string) (Message, error) {
	if recipient == "" {
		return Message{}, ErrEmptyRecipient
	}

	data := templateData{TeamName: teamName}

	var hb, tb bytes.Buffer
	if err := r.html.Execute(&hb, data); err != nil {
		return Message{}, fmt.Errorf("render html body: %w", err)
	}
	if err := r.text.Execute(&tb, data); err != nil {
		return Message{}, fmt.Errorf("render text body: %w", err)
	}

	return Message{
		To:       recipient,
		Subject:  r.subject,
		HTMLBody: hb.String(),
		TextBody: tb.String(),
	}, nil
}

func readTemplate(path, fallback string) (string, error) {
	if path == "" {
		b, err := defaultTemplates.ReadFile(fallback)
		if err != nil {
			return "", fmt.Errorf("read built-in template %s: %w", fallback, err)
		}
		return string(b), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", path, err)
	}
	return string(b), nil
}
