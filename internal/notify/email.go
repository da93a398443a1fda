// Package notify 运行失败时的邮件通知
package notify

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/config"
)

// Mailer 错误邮件发送器
type Mailer struct {
	cfg config.NotifyConfig

	// send 可注入，测试时替换以免真实发信
	send func(addr, from string, to []string, msg []byte) error
}

// NewMailer 创建邮件发送器
func NewMailer(cfg config.NotifyConfig) *Mailer {
	return &Mailer{
		cfg: cfg,
		send: func(addr, from string, to []string, msg []byte) error {
			// 内部中继，无需鉴权
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

// NotifyError 发送流程失败通知
//
// 收件人或服务器未配置时静默跳过，通知缺席不应再让运行失败一次。
func (m *Mailer) NotifyError(processName string, procErr error) error {
	if m.cfg.SMTPServer == "" || m.cfg.Recipient == "" {
		return nil
	}

	port := m.cfg.SMTPPort
	if port == 0 {
		port = 25
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPServer, port)

	subject := fmt.Sprintf("Fejl i proces: %s", processName)
	body := fmt.Sprintf("Processen %s fejlede %s.\n\nFejl:\n%v\n",
		processName, time.Now().Format("02-01-2006 15:04:05"), procErr)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.Sender)
	fmt.Fprintf(&msg, "To: %s\r\n", m.cfg.Recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	if err := m.send(addr, m.cfg.Sender, []string{m.cfg.Recipient}, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send error mail: %w", err)
	}
	return nil
}
