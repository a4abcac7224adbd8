// Package mailer is the outbound notification gateway.
//
// It owns SMTP delivery and the email templates; the services only know the
// Notifier interface, so tests swap in a fake and never touch the network.
//
// Delivery can fail independently of persistence. Callers decide what that
// means — the registration service logs a failed confirmation email and
// still reports success, because the account row already exists and rolling
// it back over a bounced email would be worse.
package mailer

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/caarlos0/env/v11"
	"gopkg.in/gomail.v2"
)

// TemplateConfirmation is the template identifier for the email
// confirmation message sent after registration.
const TemplateConfirmation = "confirmation"

// Notifier sends a templated message to a recipient. Implemented by Mailer
// for real SMTP delivery and by fakes in service tests.
type Notifier interface {
	Send(to, templateName string, context map[string]string) error
}

// templates maps template identifiers to subject and body. The body is a
// text/template rendered with the context fields passed to Send.
//
// Kept as in-binary constants rather than files on disk: there is exactly
// one message kind today and no translation pipeline to feed.
var templates = map[string]struct {
	subject string
	body    string
}{
	TemplateConfirmation: {
		subject: "Confirm your email",
		body: `Hi {{.name}},

Thanks for registering. Please confirm your email address by following
this link:

    {{.confirmURL}}

If you did not create this account, you can ignore this message.
`,
	},
}

// Config holds the SMTP settings, parsed from the environment.
//
// Parsed here rather than in cmd/server because the settings belong to this
// package alone — nothing else reads SMTP_* variables.
type Config struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`

	// BaseURL is the public URL of this service, used to build the
	// confirmation link. Comes from the server config, not from SMTP_*
	// variables, so it carries no env tag.
	BaseURL string
}

// ConfigFromEnv parses the SMTP settings from environment variables.
func ConfigFromEnv(baseURL string) (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("mailer: parsing environment: %w", err)
	}
	cfg.BaseURL = baseURL
	return cfg, nil
}

// Validate checks that the settings required for delivery are present.
// Only called when delivery is actually enabled — non-production
// deployments run without any SMTP configuration.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("mailer: missing SMTP_HOST")
	}
	if c.From == "" {
		return fmt.Errorf("mailer: missing SMTP_FROM")
	}
	return nil
}

// Mailer delivers templated emails over SMTP.
type Mailer struct {
	config Config
	dialer *gomail.Dialer
}

// New creates a Mailer from the given config.
func New(cfg Config) *Mailer {
	return &Mailer{
		config: cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

var _ Notifier = (*Mailer)(nil)

// Send renders the named template with the context fields and delivers it.
//
// For the confirmation template the context must carry "name" and "token";
// the confirmation URL is assembled here so the services never learn about
// routes.
func (m *Mailer) Send(to, templateName string, context map[string]string) error {
	tpl, ok := templates[templateName]
	if !ok {
		return fmt.Errorf("mailer: unknown template %q", templateName)
	}

	if token, ok := context["token"]; ok {
		context["confirmURL"] = fmt.Sprintf("%s/api/confirm?token=%s", m.config.BaseURL, token)
	}

	body, err := render(tpl.body, context)
	if err != nil {
		return fmt.Errorf("mailer: rendering template %q: %w", templateName, err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.config.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", tpl.subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("mailer: sending %q to %s: %w", templateName, to, err)
	}
	return nil
}

func render(body string, context map[string]string) (string, error) {
	t, err := template.New("email").Parse(body)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, context); err != nil {
		return "", err
	}
	return buf.String(), nil
}
