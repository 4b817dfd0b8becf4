// Package mailer はSMTPによるメール送信を提供する。
// 登録完了時のウェイトリスト確認メールを送る。
package mailer

import (
	"fmt"
	"log/slog"

	"github.com/hitoshi/clkk/internal/verification"
	"gopkg.in/gomail.v2"
)

const waitlistSubject = "You're on the CLKK waitlist"

const waitlistBody = `Thanks for verifying your email address.

You're now on the CLKK waitlist. We'll let you know as soon as your account is ready.

%s
`

// Config はSMTPの接続設定。
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// BaseURL は本文に載せるサイトのURL。
	BaseURL string
}

// Sender はメッセージを送信する。*gomail.Dialerが実装する。
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Email は送信するメール。
type Email struct {
	To       []string
	Subject  string
	Body     string
	HTMLBody string
}

// Mailer はメールを送信する。
type Mailer struct {
	config Config
	sender Sender
	logger *slog.Logger
}

// New はSMTPダイアラーを使うMailerを生成する。
func New(cfg Config, logger *slog.Logger) *Mailer {
	return NewWithSender(cfg, gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), logger)
}

// NewWithSender は送信処理を差し替えたMailerを生成する。
func NewWithSender(cfg Config, sender Sender, logger *slog.Logger) *Mailer {
	return &Mailer{
		config: cfg,
		sender: sender,
		logger: logger,
	}
}

// Send はメールを1通送信する。
func (m *Mailer) Send(email Email) error {
	if len(email.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.config.From)
	msg.SetHeader("To", email.To...)
	msg.SetHeader("Subject", email.Subject)

	if email.HTMLBody != "" {
		msg.SetBody("text/html", email.HTMLBody)
		if email.Body != "" {
			msg.AddAlternative("text/plain", email.Body)
		}
	} else {
		msg.SetBody("text/plain", email.Body)
	}

	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// SendWaitlistConfirmation はウェイトリスト登録完了のメールを送信する。
func (m *Mailer) SendWaitlistConfirmation(to string) error {
	return m.Send(Email{
		To:      []string{to},
		Subject: waitlistSubject,
		Body:    fmt.Sprintf(waitlistBody, m.config.BaseURL),
	})
}

// HandleEvent はverification.Listenerを実装する。登録完了時に確認メールを送る。
func (m *Mailer) HandleEvent(e verification.Event) {
	if e.Type != verification.EventCompleted || e.Email == "" {
		return
	}

	if err := m.SendWaitlistConfirmation(e.Email); err != nil {
		m.logger.Error("ウェイトリスト確認メールの送信に失敗しました",
			slog.String("user_id", e.UserID),
			slog.String("error", err.Error()),
		)
		return
	}

	m.logger.Info("ウェイトリスト確認メールを送信しました",
		slog.String("user_id", e.UserID),
	)
}
