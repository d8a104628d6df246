package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"chainless-core/pkg/config"
	"chainless-core/pkg/logger"
)

// Sender 发送一条消息
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender 通过 SMTP 发送邮件
type SMTPSender struct {
	cfg config.MailConfig
}

func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(body)

	return smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg.String()))
}

// SMSGateway 通过短信网关的 HTTP 接口发送
type SMSGateway struct {
	cfg    config.SMSConfig
	client *http.Client
}

func NewSMSGateway(cfg config.SMSConfig) *SMSGateway {
	return &SMSGateway{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

type smsRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func (g *SMSGateway) Send(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(smsRequest{To: to, Text: body})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.GatewayURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned %d", resp.StatusCode)
	}
	return nil
}

// LogSender 只写日志，开发环境使用
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to, subject, body string) error {
	logger.Info("模拟发送消息", zap.String("to", to), zap.String("subject", subject), zap.String("body", body))
	return nil
}

// NewDeliverer 根据配置选择发送渠道，未配置时退回到日志
func NewDeliverer(mail config.MailConfig, sms config.SMSConfig) *Deliverer {
	d := &Deliverer{Email: LogSender{}, SMS: LogSender{}}
	if mail.Host != "" {
		d.Email = NewSMTPSender(mail)
	}
	if sms.GatewayURL != "" {
		d.SMS = NewSMSGateway(sms)
	}
	return d
}
