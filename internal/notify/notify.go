// Package notify sends job outcome mails to submitters. Notifications are
// best-effort: a mail failure is logged, never propagated into job state.
package notify

import (
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog"

	"github.com/fermo-metabolomics/fermo-srv/internal/config"
)

// sendMail is swappable in tests.
var sendMail = smtp.SendMail

// Notifier sends submission outcome mails. Disabled entirely outside the
// online deployment mode or when SMTP is not configured.
type Notifier struct {
	smtp    config.SMTPConfig
	rootURL string
	enabled bool
	log     zerolog.Logger
}

// NewNotifier creates a notifier bound to the deployment config.
func NewNotifier(cfg *config.Config, log zerolog.Logger) *Notifier {
	return &Notifier{
		smtp:    cfg.SMTP,
		rootURL: cfg.RootURL,
		enabled: cfg.Online && cfg.SMTP.Configured(),
		log:     log,
	}
}

// JobSuccess mails the submitter that the job finished, with a link to the
// result view. A missing address is a no-op.
func (n *Notifier) JobSuccess(jobID, address string) {
	n.send(address, "FERMO JOB SUCCESS (NOREPLY)", fmt.Sprintf(
		"Your FERMO job %s finished successfully.\r\nResults: %s/results/%s/\r\n",
		jobID, n.rootURL, jobID))
}

// JobFailure mails the submitter that the job failed.
func (n *Notifier) JobFailure(jobID, address string) {
	n.send(address, "FERMO JOB FAILED (NOREPLY)", fmt.Sprintf(
		"Your FERMO job %s failed.\r\nDetails: %s/results/%s/\r\n",
		jobID, n.rootURL, jobID))
}

func (n *Notifier) send(address, subject, body string) {
	if !n.enabled || address == "" {
		return
	}

	msg := []byte(fmt.Sprintf("To: %s\r\nFrom: %s\r\nSubject: %s\r\n\r\n%s",
		address, n.smtp.From, subject, body))

	addr := n.smtp.Host + ":" + n.smtp.Port
	var auth smtp.Auth
	if n.smtp.Username != "" {
		auth = smtp.PlainAuth("", n.smtp.Username, n.smtp.Password, n.smtp.Host)
	}

	if err := sendMail(addr, auth, n.smtp.From, []string{address}, msg); err != nil {
		n.log.Warn().Err(err).Str("recipient", address).Msg("Failed to send notification mail")
		return
	}
	n.log.Debug().Str("recipient", address).Str("subject", subject).Msg("Sent notification mail")
}
