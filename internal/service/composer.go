package service

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"newsletter-go/internal/models"
)

// Email is a composed subject and HTML body for one recipient.
type Email struct {
	Subject string
	HTML    string
}

const emailTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1 style="color: #2c3e50;">{{.Title}}</h1>
{{- if .Excerpt}}
  <p>{{.Excerpt}}</p>
{{- end}}
{{- if .Body}}
  <div>{{.Body}}</div>
{{- end}}
{{- if .TargetURL}}
  <p><a href="{{.TargetURL}}" style="display: inline-block; padding: 10px 20px; background: #27ae60; color: #fff; text-decoration: none; border-radius: 4px;">Read More</a></p>
{{- end}}
  <hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">
  <p style="font-size: 12px; color: #999;">
    You're receiving this email because you subscribed to the {{.SiteName}} newsletter.
    <a href="{{.UnsubscribeURL}}" style="color: #999;">Unsubscribe or update your preferences</a>
  </p>
</body>
</html>
`

type emailView struct {
	Title          string
	Excerpt        string
	Body           template.HTML
	TargetURL      string
	UnsubscribeURL string
	SiteName       string
}

// Composer renders notification emails. It holds no mutable state; the
// same input always yields the same output.
type Composer struct {
	siteURL  string
	siteName string
	tmpl     *template.Template
}

func NewComposer(siteURL, siteName string) *Composer {
	return &Composer{
		siteURL:  strings.TrimRight(siteURL, "/"),
		siteName: siteName,
		tmpl:     template.Must(template.New("notification").Parse(emailTemplate)),
	}
}

// Compose builds the email for one recipient. content must be non-nil for
// content-backed notifications and is ignored for custom ones.
func (c *Composer) Compose(n *models.Notification, content *models.ContentItem, recipient string) (Email, error) {
	view := emailView{
		Title:          n.Title,
		UnsubscribeURL: c.UnsubscribeURL(recipient),
		SiteName:       c.siteName,
	}

	var subject string
	if n.ContentType.IsCustom() {
		subject = n.Title
		// Custom bodies are authored by admins as HTML.
		view.Body = template.HTML(n.Body)
	} else {
		route, ok := n.ContentType.Route()
		if !ok {
			return Email{}, fmt.Errorf("%w: %q", models.ErrInvalidContentType, n.ContentType)
		}
		if content == nil {
			return Email{}, fmt.Errorf("%w: %s notification %s has no content", models.ErrContentNotFound, n.ContentType, n.ID)
		}
		subject = fmt.Sprintf("New %s: %s", route.DisplayName, n.Title)
		view.Excerpt = n.Excerpt
		view.TargetURL = c.TargetURL(route, content.Slug)
	}

	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, view); err != nil {
		return Email{}, fmt.Errorf("failed to render email: %w", err)
	}
	return Email{Subject: subject, HTML: buf.String()}, nil
}

func (c *Composer) TargetURL(route models.ContentRoute, slug string) string {
	return c.siteURL + "/" + route.PathSegment + "/" + url.PathEscape(slug)
}

func (c *Composer) UnsubscribeURL(email string) string {
	return c.siteURL + "/unsubscribe?email=" + url.QueryEscape(email)
}
