// Package mailer owns the process-wide SMTP transport.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/wneessen/go-mail"

	"talentCorner/internal/config"
)

// Message is a rendered email ready to be sent.
type Message struct {
	FromName string
	From     string
	ReplyTo  string
	To       string
	Subject  string
	HTML     string
	Text     string
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender keeps one go-mail client and one connection for the lifetime of the process.
// A failed send drops the connection; the next call dials again.
type SMTPSender struct {
	mu          sync.Mutex
	client      *mail.Client
	connected   bool
	defaultFrom string
	defaultName string
}

// NewSMTPSender 根据配置创建 SMTP 客户端，不会立即拨号。
func NewSMTPSender(cfg config.MailConfig) (*SMTPSender, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
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
		return nil, fmt.Errorf("init smtp client: %w", err)
	}

	return &SMTPSender{
		client:      client,
		defaultFrom: cfg.From,
		defaultName: cfg.FromName,
	}, nil
}

// Send 发送一封邮件，必要时重新建立连接。
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := s.build(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		if err := s.client.DialWithContext(ctx); err != nil {
			return fmt.Errorf("dial smtp: %w", err)
		}
		s.connected = true
	}

	if err := s.client.Send(m); err != nil {
		_ = s.client.Close()
		s.connected = false
		return fmt.Errorf("send to %s: %w", msg.To, err)
	}
	return nil
}

// Close 关闭底层连接。
func (s *SMTPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	s.connected = false
	return s.client.Close()
}

func (s *SMTPSender) build(msg Message) (*mail.Msg, error) {
	if strings.TrimSpace(msg.To) == "" {
		return nil, errors.New("message has no recipient")
	}

	from, name := msg.From, msg.FromName
	if from == "" {
		from, name = s.defaultFrom, s.defaultName
	}

	m := mail.NewMsg()
	var err error
	if name != "" {
		err = m.FromFormat(name, from)
	} else {
		err = m.From(from)
	}
	if err != nil {
		return nil, fmt.Errorf("set from %q: %w", from, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("set recipient %q: %w", msg.To, err)
	}
	if msg.ReplyTo != "" {
		if err := m.ReplyTo(msg.ReplyTo); err != nil {
			return nil, fmt.Errorf("set reply-to %q: %w", msg.ReplyTo, err)
		}
	}
	m.Subject(msg.Subject)

	switch {
	case msg.HTML != "" && msg.Text != "":
		m.SetBodyString(mail.TypeTextPlain, msg.Text)
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	default:
		m.SetBodyString(mail.TypeTextPlain, msg.Text)
	}
	return m, nil
}
