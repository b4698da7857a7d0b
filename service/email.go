package service

import (
	"fmt"
	"html"
	"strings"
	"time"

	"expensebot/config"

	"gopkg.in/gomail.v2"
)

// EmailService 告警邮件服务
type EmailService struct {
	cfg  *config.EmailConfig
	send func(m *gomail.Message) error
}

// NewEmailService 创建邮件服务
func NewEmailService(cfg *config.EmailConfig) *EmailService {
	s := &EmailService{cfg: cfg}
	s.send = s.dialAndSend
	return s
}

// SendAlertEmail 发送运维告警邮件
func (s *EmailService) SendAlertEmail(event, detail string, at time.Time) error {
	if !s.cfg.Enabled {
		return fmt.Errorf("邮件服务未启用，请配置 alert.email.enabled=true")
	}
	if s.cfg.To == "" {
		return fmt.Errorf("未配置告警收件人 alert.email.to")
	}

	subject := fmt.Sprintf("[expensebot] %s", event)
	body := s.generateAlertEmailBody(event, detail, at)

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.cfg.Username, s.cfg.From))
	m.SetHeader("To", splitRecipients(s.cfg.To)...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)
	return s.send(m)
}

// generateAlertEmailBody 生成告警邮件内容
func (s *EmailService) generateAlertEmailBody(event, detail string, at time.Time) string {
	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; background: #f5f5f5; margin: 0; padding: 20px; }
        .container { max-width: 720px; margin: 0 auto; background: #fff; border-radius: 12px; overflow: hidden; }
        .header { background: #dc2626; color: white; padding: 20px 30px; }
        .header h1 { margin: 0; font-size: 20px; }
        .content { padding: 24px 30px; }
        pre { background: #f1f5f9; padding: 16px; border-radius: 8px; white-space: pre-wrap; word-break: break-all; font-size: 13px; }
        .meta { color: #64748b; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h1>🛑 %s</h1></div>
        <div class="content">
            <p class="meta">%s</p>
            <pre>%s</pre>
        </div>
    </div>
</body>
</html>
`, html.EscapeString(event), at.Format(time.RFC3339), html.EscapeString(detail))
}

func (s *EmailService) dialAndSend(m *gomail.Message) error {
	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	return nil
}

func splitRecipients(to string) []string {
	var out []string
	for _, addr := range strings.Split(to, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
