package notifications

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/orderdesk-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/orderdesk-backend/pkg/errors"
	"github.com/angelmondragon/orderdesk-backend/pkg/logger"
)

// Dispatcher delivers a rendered notification to its recipients.
type Dispatcher interface {
	Send(ctx context.Context, title, body string, recipients []string) error
}

// NewDispatcher picks SMTP delivery when a relay is configured and falls back
// to logging otherwise.
func NewDispatcher(cfg config.NotificationsConfig, logg *logger.Logger) (Dispatcher, error) {
	if !cfg.SMTPEnabled() {
		return NewLogDispatcher(logg)
	}
	return NewSMTPDispatcher(SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.DefaultFrom,
	})
}

// LogDispatcher writes notifications to the structured log.
type LogDispatcher struct {
	logg *logger.Logger
}

func NewLogDispatcher(logg *logger.Logger) (*LogDispatcher, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &LogDispatcher{logg: logg}, nil
}

func (d *LogDispatcher) Send(ctx context.Context, title, body string, recipients []string) error {
	ctx = d.logg.WithFields(ctx, map[string]any{
		"title":      title,
		"body":       body,
		"recipients": strings.Join(recipients, ","),
	})
	d.logg.Info(ctx, "notification dispatched")
	return nil
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPDispatcher sends plain-text mail through a relay.
type SMTPDispatcher struct {
	addr     string
	host     string
	auth     smtp.Auth
	from     string
	sendMail sendMailFunc
	now      func() time.Time
}

func NewSMTPDispatcher(cfg SMTPConfig) (*SMTPDispatcher, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, fmt.Errorf("smtp host required")
	}
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		return nil, fmt.Errorf("smtp sender address required")
	}
	port := cfg.Port
	if port <= 0 {
		port = 587
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return &SMTPDispatcher{
		addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		host:     host,
		auth:     auth,
		from:     from,
		sendMail: smtp.SendMail,
		now:      time.Now,
	}, nil
}

func (d *SMTPDispatcher) Send(ctx context.Context, title, body string, recipients []string) error {
	to := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			to = append(to, r)
		}
	}
	if len(to) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.sendMail(d.addr, d.auth, d.from, to, d.render(title, body, to)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send mail")
	}
	return nil
}

func (d *SMTPDispatcher) render(title, body string, to []string) []byte {
	var b strings.Builder
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	header("From", d.from)
	header("To", strings.Join(to, ", "))
	header("Subject", headerSafe(title))
	header("Date", d.now().UTC().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=UTF-8")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

func headerSafe(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
