package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// SendGridSender delivers email through the SendGrid v3 API.
type SendGridSender struct {
	key  string
	host string
	from *sgmail.Email
}

// NewSendGridSender creates a SendGrid sender. host may be empty.
func NewSendGridSender(key, fromName, fromEmail, host string) (*SendGridSender, error) {
	if key == "" {
		return nil, errors.New("SENDGRID_API_KEY is required")
	}
	if fromEmail == "" {
		return nil, errors.New("NOTIFY_FROM is required")
	}
	if host == "" {
		host = sendGridHost
	}
	return &SendGridSender{
		key:  key,
		host: host,
		from: sgmail.NewEmail(fromName, fromEmail),
	}, nil
}

func (s *SendGridSender) prepare(recipient, subject, body string) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = subject
	p.AddTos(sgmail.NewEmail("", recipient))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", body))
	return m
}

// Send delivers the message to recipient.
func (s *SendGridSender) Send(ctx context.Context, recipient, subject, body string) error {
	if recipient == "" {
		return ErrNoRecipient
	}
	req := sendgrid.GetRequest(s.key, sendGridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(recipient, subject, body))

	// MakeRequest has no context, so build the HTTP request ourselves.
	httpReq, err := rest.BuildRequestObject(req)
	if err != nil {
		return fmt.Errorf("build sendgrid request: %w", err)
	}
	httpRes, err := rest.DefaultClient.MakeRequest(httpReq.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	defer httpRes.Body.Close()

	res, err := rest.BuildResponse(httpRes)
	if err != nil {
		return fmt.Errorf("read sendgrid response: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid error (status %d): %s", res.StatusCode, res.Body)
	}
	return nil
}

// Name returns the transport name.
func (s *SendGridSender) Name() string { return "sendgrid" }
