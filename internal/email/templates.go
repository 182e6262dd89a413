package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// ShareData fills the share template
type ShareData struct {
	SenderName  string
	Title       string
	URL         string
	Description string
	Image       string
	Note        string
}

// DigestTask is one line of the digest
type DigestTask struct {
	Title string
	DueAt *time.Time
	URL   string
}

// DigestData fills the digest template
type DigestData struct {
	Name    string
	Tasks   []DigestTask
	BaseURL string
}

var templates = template.Must(template.New("email").Funcs(template.FuncMap{
	"due": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.UTC().Format("Mon Jan 2, 15:04 MST")
	},
}).Parse(shareTemplate + digestTemplate))

// ShareMessage renders a bookmark shared by email
func ShareMessage(to string, data ShareData) (Message, error) {
	if data.Title == "" {
		data.Title = data.URL
	}
	html, err := render("share", data)
	if err != nil {
		return Message{}, err
	}

	subject := fmt.Sprintf("%s shared a link with you", fallback(data.SenderName, "Someone"))
	return Message{To: to, Subject: subject, HTML: html}, nil
}

// DigestMessage renders the daily list of due action items
func DigestMessage(to string, data DigestData) (Message, error) {
	html, err := render("digest", data)
	if err != nil {
		return Message{}, err
	}

	subject := fmt.Sprintf("You have %d action item", len(data.Tasks))
	if len(data.Tasks) != 1 {
		subject += "s"
	}
	return Message{To: to, Subject: subject + " due soon", HTML: html}, nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s email: %w", name, err)
	}
	return buf.String(), nil
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

const shareTemplate = `{{define "share"}}<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; color: #1f2933;">
  <p>{{if .SenderName}}{{.SenderName}}{{else}}Someone{{end}} thought you would like this:</p>
  <div style="border: 1px solid #e4e7eb; border-radius: 8px; padding: 16px; max-width: 560px;">
    {{if .Image}}<img src="{{.Image}}" alt="" style="max-width: 100%; border-radius: 4px;">{{end}}
    <h2 style="margin: 12px 0 4px;"><a href="{{.URL}}">{{.Title}}</a></h2>
    {{if .Description}}<p style="color: #52606d;">{{.Description}}</p>{{end}}
  </div>
  {{if .Note}}<blockquote style="border-left: 3px solid #cbd2d9; margin: 16px 0; padding-left: 12px;">{{.Note}}</blockquote>{{end}}
  <p style="font-size: 12px; color: #9aa5b1;">Sent with Markwell</p>
</body>
</html>{{end}}`

const digestTemplate = `{{define "digest"}}<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; color: #1f2933;">
  <p>Hi{{if .Name}} {{.Name}}{{end}},</p>
  <p>These action items are due in the next 24 hours:</p>
  <ul>
  {{range .Tasks}}<li>{{if .URL}}<a href="{{.URL}}">{{.Title}}</a>{{else}}{{.Title}}{{end}}{{with due .DueAt}} <span style="color: #52606d;">({{.}})</span>{{end}}</li>
  {{end}}</ul>
  {{if .BaseURL}}<p><a href="{{.BaseURL}}/tasks">Open Markwell</a></p>{{end}}
</body>
</html>{{end}}`
