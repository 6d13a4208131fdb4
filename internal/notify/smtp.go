package notify

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"

	"github.com/kozaktomas/smart-library/internal/config"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	queueSize   = 64
	sendTimeout = 30 * time.Second
)

// ErrMailerClosed is returned for notices submitted after Close.
var ErrMailerClosed = errors.New("mailer closed")

// ErrQueueFull is returned when the delivery queue cannot take another message.
var ErrQueueFull = errors.New("mail queue full")

type kind string

const (
	kindIssued   kind = "issued"
	kindReturned kind = "returned"
	kindReissued kind = "reissued"
	kindTest     kind = "test"
)

var subjects = map[kind]string{
	kindIssued:   "Book Issued: %s",
	kindReturned: "Book Returned: %s",
	kindReissued: "Book Reissued: %s",
	kindTest:     "Library mail test%s",
}

// sender is the part of *mail.Client the mailer uses.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer sends loan notices over SMTP from a background worker.
type Mailer struct {
	from      string
	client    sender
	templates map[kind]*template.Template

	mu     sync.Mutex
	closed bool
	queue  chan *mail.Msg
	done   chan struct{}
}

// NewMailer creates a mailer for cfg and starts its delivery worker.
func NewMailer(cfg config.SMTPConfig) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(sendTimeout),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create SMTP client: %w", err)
	}
	return newMailer(cfg.From, client)
}

func newMailer(from string, client sender) (*Mailer, error) {
	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	m := &Mailer{
		from:      from,
		client:    client,
		templates: templates,
		queue:     make(chan *mail.Msg, queueSize),
		done:      make(chan struct{}),
	}
	go m.run()
	return m, nil
}

func parseTemplates() (map[kind]*template.Template, error) {
	funcs := template.FuncMap{
		"date":     func(t time.Time) string { return t.Format(time.DateOnly) },
		"datetime": func(t time.Time) string { return t.Format("2006-01-02 15:04") },
	}
	out := make(map[kind]*template.Template, len(subjects))
	for k := range subjects {
		set, err := template.New("").Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html", "templates/"+string(k)+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", k, err)
		}
		out[k] = set.Lookup("layout")
	}
	return out, nil
}

func (m *Mailer) run() {
	defer close(m.done)
	for msg := range m.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
			to, _ := msg.GetRecipients()
			slog.Error("failed to send mail", "to", to, "error", err)
		}
		cancel()
	}
}

func (m *Mailer) build(k kind, n LoanNotice) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.from, err)
	}
	if err := msg.To(n.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", n.To, err)
	}
	msg.Subject(fmt.Sprintf(subjects[k], n.Title))
	msg.SetMessageIDWithValue(uuid.NewString() + "@smart-library")
	msg.SetDate()
	if err := msg.SetBodyHTMLTemplate(m.templates[k], n); err != nil {
		return nil, fmt.Errorf("render %s mail: %w", k, err)
	}
	return msg, nil
}

func (m *Mailer) enqueue(k kind, n LoanNotice) error {
	msg, err := m.build(k, n)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrMailerClosed
	}
	select {
	case m.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (m *Mailer) LoanIssued(_ context.Context, n LoanNotice) error {
	return m.enqueue(kindIssued, n)
}

func (m *Mailer) LoanReturned(_ context.Context, n LoanNotice) error {
	return m.enqueue(kindReturned, n)
}

func (m *Mailer) LoanReissued(_ context.Context, n LoanNotice) error {
	return m.enqueue(kindReissued, n)
}

// SendTest delivers a test message synchronously.
func (m *Mailer) SendTest(ctx context.Context, to string) error {
	msg, err := m.build(kindTest, LoanNotice{To: to, Name: to, Reference: uuid.NewString()})
	if err != nil {
		return err
	}
	// the test subject takes no title
	msg.Subject(fmt.Sprintf(subjects[kindTest], ""))
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send test mail: %w", err)
	}
	return nil
}

// Close stops accepting notices and waits for queued ones to be sent.
func (m *Mailer) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.mu.Unlock()
	<-m.done
}

// New returns a Mailer when SMTP is configured, and a LogNotifier otherwise.
// The returned close function is never nil.
func New(cfg config.SMTPConfig) (Notifier, func(), error) {
	if !cfg.Enabled() {
		return LogNotifier{}, func() {}, nil
	}
	m, err := NewMailer(cfg)
	if err != nil {
		return nil, nil, err
	}
	return m, m.Close, nil
}
