package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/benrobertsonio/marcoswift.com/internal/config"
	"github.com/benrobertsonio/marcoswift.com/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	newSubscriberSubject = "📚 New Prologue Download!"
	bookTitle            = "Marco Swift and the Mirror of Souls"
	prologueFormats      = "Audiobook, ePub, PDF"

	// medium date, short time
	timeLayout = "Jan 2, 2006, 3:04 PM"
)

type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Transport delivers a single rendered message. Implementations make one
// attempt and do not retry.
type Transport interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

type newSubscriberData struct {
	Email  string
	Time   string
	Format string
	Title  string
}

// Notifier tells the site operator about new subscribers.
type Notifier struct {
	transport Transport
	templates *template.Template
	from      string
	to        string
	location  *time.Location
	now       func() time.Time
}

// New builds a Notifier from cfg. It returns nil, nil when no transport is
// configured, which disables notifications. Resend takes precedence over SMTP.
func New(cfg *config.Config) (*Notifier, error) {
	if !cfg.NotificationsEnabled() {
		return nil, nil
	}

	var transport Transport = NewSMTPSender(cfg)
	if cfg.ResendAPIKey != "" {
		transport = NewResendSender(cfg.ResendBaseURL, cfg.ResendAPIKey)
	}

	return NewNotifier(transport, cfg.NotifyFrom, cfg.NotifyTo, cfg.NotifyTimezone)
}

func NewNotifier(
	transport Transport,
	from string,
	to string,
	timezone string,
) (*Notifier, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", timezone, err)
	}

	return &Notifier{
		transport: transport,
		templates: templates,
		from:      from,
		to:        to,
		location:  location,
		now:       time.Now,
	}, nil
}

func (n *Notifier) Transport() string {
	return n.transport.Name()
}

// NotifyNewSubscriber sends the operator a message containing the
// subscriber's address as a mailto link.
func (n *Notifier) NotifyNewSubscriber(
	ctx context.Context,
	subscriber models.Subscriber,
) error {
	html, err := n.render(subscriber)
	if err != nil {
		return err
	}

	return n.transport.Send(ctx, Message{
		From:    n.from,
		To:      n.to,
		Subject: newSubscriberSubject,
		HTML:    html,
	})
}

func (n *Notifier) render(subscriber models.Subscriber) (string, error) {
	data := newSubscriberData{
		Email:  subscriber.Email,
		Time:   n.now().In(n.location).Format(timeLayout),
		Format: prologueFormats,
		Title:  bookTitle,
	}

	var body bytes.Buffer
	if err := n.templates.ExecuteTemplate(&body, "new_subscriber.html", data); err != nil {
		return "", fmt.Errorf("failed to render notification: %w", err)
	}
	return body.String(), nil
}
