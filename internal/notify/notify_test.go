package notify

import (
	"net/smtp"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fermo-metabolomics/fermo-srv/internal/config"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func captureMail(t *testing.T) *[]sentMail {
	t.Helper()
	var sent []sentMail
	orig := sendMail
	sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	}
	t.Cleanup(func() { sendMail = orig })
	return &sent
}

func onlineConfig() *config.Config {
	cfg := config.Default()
	cfg.Online = true
	cfg.RootURL = "https://fermo.example.org"
	cfg.SMTP = config.SMTPConfig{Host: "localhost", Port: "25", From: "noreply@fermo.example.org"}
	return cfg
}

func TestJobSuccessMail(t *testing.T) {
	sent := captureMail(t)
	n := NewNotifier(onlineConfig(), zerolog.Nop())

	n.JobSuccess("job-123", "user@example.org")

	if len(*sent) != 1 {
		t.Fatalf("Expected 1 mail, got %d", len(*sent))
	}
	mail := (*sent)[0]
	if mail.to[0] != "user@example.org" {
		t.Errorf("Unexpected recipient: %v", mail.to)
	}
	if !strings.Contains(mail.msg, "SUCCESS") {
		t.Error("Success mail must mention success")
	}
	if !strings.Contains(mail.msg, "https://fermo.example.org/results/job-123/") {
		t.Errorf("Mail must link to the result view, got %q", mail.msg)
	}
}

func TestJobFailureMail(t *testing.T) {
	sent := captureMail(t)
	n := NewNotifier(onlineConfig(), zerolog.Nop())

	n.JobFailure("job-123", "user@example.org")

	if len(*sent) != 1 {
		t.Fatalf("Expected 1 mail, got %d", len(*sent))
	}
	if !strings.Contains((*sent)[0].msg, "FAILED") {
		t.Error("Failure mail must mention failure")
	}
}

func TestNoMailWithoutAddress(t *testing.T) {
	sent := captureMail(t)
	n := NewNotifier(onlineConfig(), zerolog.Nop())

	n.JobSuccess("job-123", "")

	if len(*sent) != 0 {
		t.Errorf("No mail may be sent without an address, got %d", len(*sent))
	}
}

func TestNoMailOffline(t *testing.T) {
	sent := captureMail(t)
	cfg := onlineConfig()
	cfg.Online = false
	n := NewNotifier(cfg, zerolog.Nop())

	n.JobSuccess("job-123", "user@example.org")

	if len(*sent) != 0 {
		t.Errorf("No mail may be sent offline, got %d", len(*sent))
	}
}
