// ABOUTME: Template rendering for invitation and follow-up reminder emails.
// ABOUTME: Templates parsed once at init from embedded FS; rendered per send.
package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltpl "html/template"
	"strings"
	texttpl "text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Template function maps shared by both HTML and text templates.
var funcMap = map[string]any{
	// plural returns "s" unless n is exactly one.
	"plural": func(n int) string {
		if n == 1 {
			return ""
		}
		return "s"
	},
	// labelColor returns a CSS color for a digest line label.
	"labelColor": func(label string) string {
		if label == "OVERDUE" {
			return "#dc3545"
		}
		return "#737373"
	},
}

// Parsed templates, one per file to avoid {{define}} namespace collisions.
var (
	invitationHTML *htmltpl.Template
	invitationText *texttpl.Template
	reminderHTML   *htmltpl.Template
	reminderText   *texttpl.Template
)

func init() {
	invitationHTML = htmltpl.Must(htmltpl.New("").Funcs(htmltpl.FuncMap(funcMap)).ParseFS(templateFS, "templates/email_invitation.html.tmpl"))
	invitationText = texttpl.Must(texttpl.New("").Funcs(texttpl.FuncMap(funcMap)).ParseFS(templateFS, "templates/email_invitation.txt.tmpl"))
	reminderHTML = htmltpl.Must(htmltpl.New("").Funcs(htmltpl.FuncMap(funcMap)).ParseFS(templateFS, "templates/email_reminder.html.tmpl"))
	reminderText = texttpl.Must(texttpl.New("").Funcs(texttpl.FuncMap(funcMap)).ParseFS(templateFS, "templates/email_reminder.txt.tmpl"))
}

// RenderInvitation renders an invitation email. Returns subject, HTML body, and plaintext body.
func RenderInvitation(data Invitation) (string, string, string, error) {
	return renderPair(invitationHTML, invitationText, data)
}

// RenderReminder renders a follow-up digest. Returns subject, HTML body, and plaintext body.
func RenderReminder(data Reminder) (string, string, string, error) {
	return renderPair(reminderHTML, reminderText, data)
}

func renderPair(html *htmltpl.Template, text *texttpl.Template, data any) (string, string, string, error) {
	// Render subject from the text template's "subject" block.
	var subjectBuf bytes.Buffer
	if err := text.ExecuteTemplate(&subjectBuf, "subject", data); err != nil {
		return "", "", "", fmt.Errorf("render subject: %w", err)
	}
	subject := sanitizeSubject(subjectBuf.String())

	var htmlBuf bytes.Buffer
	if err := html.ExecuteTemplate(&htmlBuf, "body", data); err != nil {
		return "", "", "", fmt.Errorf("render html: %w", err)
	}

	var textBuf bytes.Buffer
	if err := text.ExecuteTemplate(&textBuf, "body", data); err != nil {
		return "", "", "", fmt.Errorf("render text: %w", err)
	}

	return subject, htmlBuf.String(), textBuf.String(), nil
}

// sanitizeSubject strips CR/LF to prevent email header injection.
func sanitizeSubject(s string) string {
	s = strings.TrimSpace(s)
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
