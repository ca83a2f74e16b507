package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/flowstate/internal/model"
)

// Subject は通知メールの件名。
const Subject = "Productivity Reminder"

// Notifier はリマインダーの送信インターフェース。
// nilを返した場合のみ送信済みとして扱われる。
type Notifier interface {
	Send(ctx context.Context, reminder *model.Reminder) error
}

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier はSMTPでリマインダーメールを送信する。
type SMTPNotifier struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now      func() time.Time
}

// NewSMTPNotifier はSMTPNotifierの新しいインスタンスを生成する。
// Usernameが空の場合は認証なしで送信する。
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	return &SMTPNotifier{cfg: cfg, sendMail: smtp.SendMail, now: time.Now}, nil
}

// Send はリマインダーをメールで送信する。
// net/smtpはcontextに対応していないため、呼び出し前にキャンセル済みであれば送信しない。
func (n *SMTPNotifier) Send(ctx context.Context, rem *model.Reminder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rem.Email == "" {
		return fmt.Errorf("reminder %s has no recipient", rem.ID)
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	msg := BuildMessage(n.cfg.From, rem, n.now())

	if err := n.sendMail(addr, auth, n.cfg.From, []string{rem.Email}, msg); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

// BuildMessage はRFC 5322形式のメール本文を組み立てる。
func BuildMessage(from string, rem *model.Reminder, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + headerValue(from) + "\r\n")
	b.WriteString("To: " + headerValue(rem.Email) + "\r\n")
	b.WriteString("Subject: " + Subject + "\r\n")
	b.WriteString("Date: " + now.UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString("Reminder: " + strings.ReplaceAll(rem.Message, "\n", "\r\n") + "\r\n")
	return []byte(b.String())
}

// headerValue はヘッダーインジェクションを防ぐため改行を除去する。
func headerValue(v string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(v)
}

// LogNotifier はSMTP未設定時に使う送信実装。送信内容をログに出力するだけで常に成功する。
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier はLogNotifierの新しいインスタンスを生成する。
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send はリマインダーの内容をINFOレベルで記録する。
func (n *LogNotifier) Send(ctx context.Context, rem *model.Reminder) error {
	n.logger.Info("reminder delivered to log",
		slog.String("reminder_id", rem.ID),
		slog.String("account_id", rem.AccountID),
		slog.String("message", rem.Message),
	)
	return nil
}

var (
	_ Notifier = (*SMTPNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
