package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"wrapdesk/internal/messages"
)

type SMSConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	// APIBase defaults to https://api.twilio.com.
	APIBase string

	Timeout        time.Duration
	MaxRetries     uint64
	MaxElapsedTime time.Duration
}

func (c SMSConfig) withDefaults() SMSConfig {
	if c.APIBase == "" {
		c.APIBase = "https://api.twilio.com"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.MaxElapsedTime <= 0 {
		c.MaxElapsedTime = 15 * time.Second
	}
	return c
}

// SMSClient sends messages through Twilio's Messages REST resource.
type SMSClient struct {
	cfg  SMSConfig
	http *http.Client
	log  *slog.Logger
}

func NewSMSClient(cfg SMSConfig, log *slog.Logger) *SMSClient {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &SMSClient{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, log: log}
}

type twilioMessage struct {
	SID          string  `json:"sid"`
	Status       string  `json:"status"`
	ErrorCode    *int    `json:"error_code"`
	ErrorMessage *string `json:"error_message"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Send posts one message. Transport errors, 429 and 5xx are retried with
// exponential backoff; other rejections fail at once. Failures come back
// as *messages.ProviderError.
func (c *SMSClient) Send(ctx context.Context, req messages.SendRequest) (messages.SendResult, error) {
	if c.cfg.AccountSID == "" || c.cfg.AuthToken == "" || c.cfg.FromNumber == "" {
		return messages.SendResult{}, errors.New("telephony: twilio credentials not configured")
	}
	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", c.cfg.FromNumber)
	if req.Body != "" {
		form.Set("Body", req.Body)
	}
	for _, m := range req.MediaURLs {
		form.Add("MediaUrl", m)
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(c.cfg.APIBase, "/"), url.PathEscape(c.cfg.AccountSID))

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = c.cfg.MaxElapsedTime
	b := backoff.WithContext(backoff.WithMaxRetries(policy, c.cfg.MaxRetries), ctx)

	var msg twilioMessage
	op := func() error {
		var err error
		msg, err = c.post(ctx, endpoint, form)
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn("twilio send retry", "err", err, "retry_in", wait)
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		var pe *messages.ProviderError
		if errors.As(err, &pe) {
			return messages.SendResult{}, pe
		}
		return messages.SendResult{}, &messages.ProviderError{Message: err.Error()}
	}

	if msg.Status == "failed" || msg.Status == "undelivered" {
		text := msg.Status
		if msg.ErrorMessage != nil {
			text = *msg.ErrorMessage
		}
		return messages.SendResult{OK: false, ProviderID: msg.SID, Message: text}, nil
	}
	return messages.SendResult{OK: true, ProviderID: msg.SID}, nil
}

func (c *SMSClient) post(ctx context.Context, endpoint string, form url.Values) (twilioMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return twilioMessage{}, backoff.Permanent(err)
	}
	httpReq.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return twilioMessage{}, backoff.Permanent(err)
		}
		return twilioMessage{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return twilioMessage{}, err
	}

	if resp.StatusCode >= 300 {
		pe := &messages.ProviderError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var te twilioError
		if json.Unmarshal(raw, &te) == nil && te.Message != "" {
			pe.Message = te.Message
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return twilioMessage{}, pe
		}
		return twilioMessage{}, backoff.Permanent(pe)
	}

	var msg twilioMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return twilioMessage{}, backoff.Permanent(fmt.Errorf("telephony: decode twilio response: %w", err))
	}
	return msg, nil
}
