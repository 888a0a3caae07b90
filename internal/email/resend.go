package email

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendResponse struct {
	ID string `json:"id"`
}

type resendError struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

// ResendSender delivers messages through the Resend HTTP API.
type ResendSender struct {
	client *resty.Client
}

func NewResendSender(baseURL, apiKey string) *ResendSender {
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second)

	return &ResendSender{client: client}
}

func (s *ResendSender) Name() string {
	return "resend"
}

func (s *ResendSender) Send(ctx context.Context, m Message) error {
	var (
		result  resendResponse
		failure resendError
	)

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(resendRequest{
			From:    m.From,
			To:      []string{m.To},
			Subject: m.Subject,
			HTML:    m.HTML,
		}).
		SetResult(&result).
		SetError(&failure).
		Post("/emails")
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	if resp.IsError() {
		if failure.Message != "" {
			return fmt.Errorf("resend API error (%d): %s", resp.StatusCode(), failure.Message)
		}
		return fmt.Errorf("resend API error (%d): %s", resp.StatusCode(), resp.String())
	}

	return nil
}
