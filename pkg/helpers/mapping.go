package helpers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oksasatya/go-user-auth/pkg/mailer"
	mailtpl "github.com/oksasatya/go-user-auth/pkg/mailer/templates"
)

var (
	ErrJobNoRecipient = errors.New("email job has no recipient")
	ErrJobNoBody      = errors.New("email job has neither template nor body")
	ErrJobBadTemplate = errors.New("email job references unknown template")
)

// SubjectFor is the fallback subject when a job carries none.
func SubjectFor(template string) string {
	switch strings.ToLower(template) {
	case mailtpl.Welcome:
		return "Welcome"
	case mailtpl.VerifyEmail:
		return "Verify your email address"
	case mailtpl.PasswordChanged:
		return "Your password was changed"
	default:
		return "Notification"
	}
}

func EnsureRecipientAndEmail(job *mailer.EmailJob) {
	if job.Data == nil {
		job.Data = map[string]any{}
	}
	if v, ok := job.Data["Email"]; !ok || fmt.Sprintf("%v", v) == "" {
		job.Data["Email"] = job.To
	}
	if v, ok := job.Data["RecipientEmail"]; !ok || fmt.Sprintf("%v", v) == "" {
		job.Data["RecipientEmail"] = job.To
	}
}

// RenderJob fills Subject, Text and HTML of job. A returned error means the
// payload can never be delivered and should not be requeued.
func RenderJob(job *mailer.EmailJob) error {
	job.To = strings.TrimSpace(job.To)
	if job.To == "" {
		return ErrJobNoRecipient
	}
	job.Template = strings.ToLower(strings.TrimSpace(job.Template))
	if job.Template == "" {
		if job.Text == "" && job.HTML == "" {
			return ErrJobNoBody
		}
		if job.Subject == "" {
			job.Subject = SubjectFor("")
		}
		return nil
	}
	if !mailtpl.Known(job.Template) {
		return fmt.Errorf("%w: %s", ErrJobBadTemplate, job.Template)
	}
	EnsureRecipientAndEmail(job)
	subject, text, html, err := mailtpl.Render(job.Template, job.Data)
	if err != nil {
		return err
	}
	if job.Subject == "" {
		job.Subject = subject
	}
	if job.Subject == "" {
		job.Subject = SubjectFor(job.Template)
	}
	job.Text, job.HTML = text, html
	return nil
}
