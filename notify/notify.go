// Package notify mails a notice when a post is published.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"text/template"

	"folio/apitypes"

	"github.com/golang/glog"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Sender is satisfied by *sendgrid.Client.
type Sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type Mailer struct {
	sender  Sender
	from    *mail.Email
	to      []string
	siteURL string
}

// New creates a Mailer that sends from fromAddr to every address in to.
// siteURL is the public root of the site, used to link to the post.
func New(sender Sender, fromName, fromAddr string, to []string, siteURL string) *Mailer {
	return &Mailer{
		sender:  sender,
		from:    mail.NewEmail(fromName, fromAddr),
		to:      to,
		siteURL: siteURL,
	}
}

type publishedNotice struct {
	Post apitypes.Post
	Link string
}

const publishedPlain = `A new post is up: {{.Post.Title}}
{{with .Post.Author}}by {{.}}
{{end}}
{{with .Post.Excerpt}}{{.}}

{{end -}}
Read it at {{.Link}}
`

var publishedPlainTemplate = template.Must(template.New("published").Parse(publishedPlain))

// PostPublished mails the notice for post.  With no recipients it does
// nothing.
func (m *Mailer) PostPublished(ctx context.Context, post apitypes.Post) error {
	if len(m.to) == 0 {
		return nil
	}

	message := mail.NewV3Mail()
	message.From = m.from
	message.Subject = "New post: " + post.Title

	p := mail.NewPersonalization()
	for _, addr := range m.to {
		p.To = append(p.To, mail.NewEmail("", addr))
	}
	message.Personalizations = append(message.Personalizations, p)

	textContent := &bytes.Buffer{}
	notice := &publishedNotice{
		Post: post,
		Link: m.siteURL + "/blog/" + url.PathEscape(post.ID),
	}
	if err := publishedPlainTemplate.Execute(textContent, notice); err != nil {
		return fmt.Errorf("while templating plain-text email content: %w", err)
	}
	message.Content = append(message.Content, mail.NewContent("text/plain", textContent.String()))

	resp, err := m.sender.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("while sending mail through SendGrid: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("non-2XX response while sending mail through SendGrid: %d %s", resp.StatusCode, resp.Body)
	}

	glog.Infof("Sent publication notice for post %q to %d recipients", post.ID, len(m.to))
	return nil
}
