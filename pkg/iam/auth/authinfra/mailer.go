package authinfra

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meridianid/authd/pkg/jobx"
	"github.com/meridianid/authd/pkg/logx"
	"github.com/meridianid/authd/pkg/notifx"
)

const (
	jobTypeVerificationEmail = "auth.send_verification_email"
	jobTypePasswordResetMail = "auth.send_password_reset_email"
)

// JobxMailer implements auth.Mailer by enqueuing delivery onto a jobx queue
// instead of sending synchronously, so a slow or failing email provider
// never blocks registration or password-reset request handling.
type JobxMailer struct {
	enqueuer jobx.JobEnqueuer
}

func NewJobxMailer(enqueuer jobx.JobEnqueuer) *JobxMailer {
	return &JobxMailer{enqueuer: enqueuer}
}

type mailPayload struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

func (m *JobxMailer) SendVerificationEmail(ctx context.Context, email, token string) error {
	return m.enqueue(ctx, jobTypeVerificationEmail, email, token)
}

func (m *JobxMailer) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	return m.enqueue(ctx, jobTypePasswordResetMail, email, token)
}

func (m *JobxMailer) enqueue(ctx context.Context, jobType, email, token string) error {
	payload, err := json.Marshal(mailPayload{Email: email, Token: token})
	if err != nil {
		return err
	}
	_, err = m.enqueuer.Enqueue(ctx, jobx.Job{Type: jobType, Queue: "mail", Payload: payload})
	return err
}

// RegisterMailHandlers wires the actual email delivery onto client, rendering
// the verification and password-reset messages and dispatching them through
// sender. appBaseURL is used to build the links embedded in each email.
func RegisterMailHandlers(client *jobx.Client, sender notifx.EmailSender, fromAddress, appBaseURL string) {
	client.Register(jobTypeVerificationEmail, func(ctx context.Context, job *jobx.JobInfo) error {
		var p mailPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return err
		}
		link := fmt.Sprintf("%s/verify-email?token=%s", appBaseURL, p.Token)
		msg := notifx.EmailMessage{
			From:     fromAddress,
			To:       []string{p.Email},
			Subject:  "Verify your email address",
			TextBody: fmt.Sprintf("Confirm your email by visiting: %s", link),
			HTMLBody: fmt.Sprintf(`<p>Confirm your email by clicking <a href="%s">here</a>.</p>`, link),
		}
		if err := sender.SendEmail(ctx, msg); err != nil {
			logx.WithError(err).Warnf("authinfra: failed to send verification email to %s", p.Email)
			return err
		}
		return nil
	})

	client.Register(jobTypePasswordResetMail, func(ctx context.Context, job *jobx.JobInfo) error {
		var p mailPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return err
		}
		link := fmt.Sprintf("%s/reset-password?token=%s", appBaseURL, p.Token)
		msg := notifx.EmailMessage{
			From:     fromAddress,
			To:       []string{p.Email},
			Subject:  "Reset your password",
			TextBody: fmt.Sprintf("Reset your password by visiting: %s", link),
			HTMLBody: fmt.Sprintf(`<p>Reset your password by clicking <a href="%s">here</a>. This link expires in one hour.</p>`, link),
		}
		if err := sender.SendEmail(ctx, msg); err != nil {
			logx.WithError(err).Warnf("authinfra: failed to send password reset email to %s", p.Email)
			return err
		}
		return nil
	})
}
