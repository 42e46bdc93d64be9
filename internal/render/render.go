// Package render turns a campaign and a recipient into an email using a
// template set: subject and text use text/template, HTML uses html/template.
package render

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"os"
	"strings"
	texttemplate "text/template"
	"time"

	"gopkg.in/yaml.v3"

	"bulkmail/internal/domain"
)

// TemplateSet is the on-disk format of a template file.
type TemplateSet struct {
	Subject string `yaml:"subject"`
	HTML    string `yaml:"html"`
	Text    string `yaml:"text"`
}

// DefaultSet is used when no template file is configured.
var DefaultSet = TemplateSet{
	Subject: `{{if eq .CountdownDay 0}}We launch today!{{else}}{{.CountdownDay}} day{{if ne .CountdownDay 1}}s{{end}} to launch{{end}}`,
	HTML: `<!doctype html>
<html><body>
<p>Hi {{.Name}},</p>
{{if eq .CountdownDay 0}}<p>The wait is over: we launch today, {{.LaunchDateLabel}}.</p>
{{else}}<p>Only <strong>{{.CountdownDay}}</strong> day{{if ne .CountdownDay 1}}s{{end}} left until launch on {{.LaunchDateLabel}}.</p>
{{end}}</body></html>`,
	Text: `Hi {{.Name}},
{{if eq .CountdownDay 0}}The wait is over: we launch today, {{.LaunchDateLabel}}.{{else}}Only {{.CountdownDay}} day{{if ne .CountdownDay 1}}s{{end}} left until launch on {{.LaunchDateLabel}}.{{end}}
`,
}

// Data is what templates see.
type Data struct {
	Name            string
	Email           string
	CountdownDay    int
	LaunchDate      time.Time
	LaunchDateLabel string
	Fields          map[string]string
	Metadata        map[string]string
}

type Renderer struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

func New(set TemplateSet) (*Renderer, error) {
	if strings.TrimSpace(set.Subject) == "" || strings.TrimSpace(set.HTML) == "" {
		return nil, fmt.Errorf("template set needs subject and html")
	}
	subject, err := texttemplate.New("subject").Option("missingkey=error").Parse(set.Subject)
	if err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}
	html, err := htmltemplate.New("html").Option("missingkey=error").Parse(set.HTML)
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	r := &Renderer{subject: subject, html: html}
	if strings.TrimSpace(set.Text) != "" {
		if r.text, err = texttemplate.New("text").Option("missingkey=error").Parse(set.Text); err != nil {
			return nil, fmt.Errorf("parse text template: %w", err)
		}
	}
	return r, nil
}

// LoadFile reads a YAML template set. An empty path yields the default set.
func LoadFile(path string) (*Renderer, error) {
	if path == "" {
		return New(DefaultSet)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var set TemplateSet
	if err := yaml.Unmarshal(b, &set); err != nil {
		return nil, fmt.Errorf("parse template file %s: %w", path, err)
	}
	return New(set)
}

func (r *Renderer) Render(ctx context.Context, c domain.Campaign, rc domain.Recipient) (domain.Content, error) {
	if err := ctx.Err(); err != nil {
		return domain.Content{}, err
	}
	data := Data{
		Name:            displayName(rc),
		Email:           rc.Email,
		CountdownDay:    c.CountdownDay,
		LaunchDate:      c.LaunchDate,
		LaunchDateLabel: c.LaunchDate.Format("Monday, 2 January 2006"),
		Fields:          rc.Fields,
		Metadata:        c.Metadata,
	}

	var subject, html, text bytes.Buffer
	if err := r.subject.Execute(&subject, data); err != nil {
		return domain.Content{}, fmt.Errorf("%w: subject: %v", domain.ErrRender, err)
	}
	if err := r.html.Execute(&html, data); err != nil {
		return domain.Content{}, fmt.Errorf("%w: html: %v", domain.ErrRender, err)
	}
	if r.text != nil {
		if err := r.text.Execute(&text, data); err != nil {
			return domain.Content{}, fmt.Errorf("%w: text: %v", domain.ErrRender, err)
		}
	}
	return domain.Content{
		Subject: strings.TrimSpace(subject.String()),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

func displayName(r domain.Recipient) string {
	if n := strings.TrimSpace(r.DisplayName); n != "" {
		return n
	}
	return "there"
}
