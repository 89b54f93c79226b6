package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"wrapdesk/internal/messages"
	"wrapdesk/pkg/logger"
)

func newTestSMSClient(url string) *SMSClient {
	return NewSMSClient(SMSConfig{
		AccountSID: "AC1",
		AuthToken:  "token",
		FromNumber: "+12405550000",
		APIBase:    url,
		MaxRetries: 2,
	}, logger.Discard())
}

func TestSMSClientSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC1/Messages.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC1" || pass != "token" {
			t.Errorf("expected basic auth, got %q %q", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("To") != "+12405551234" || r.PostForm.Get("From") != "+12405550000" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		if got := r.PostForm["MediaUrl"]; len(got) != 2 {
			t.Errorf("expected 2 media urls, got %v", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	res, err := newTestSMSClient(srv.URL).Send(context.Background(), messages.SendRequest{
		To:        "+12405551234",
		Body:      "Your wrap is ready",
		MediaURLs: []string{"https://media.example.com/a.jpg", "https://media.example.com/b.jpg"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.OK || res.ProviderID != "SM123" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSMSClientRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM9","status":"queued"}`))
	}))
	defer srv.Close()

	res, err := newTestSMSClient(srv.URL).Send(context.Background(), messages.SendRequest{To: "+12405551234", Body: "hi"})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if res.ProviderID != "SM9" {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestSMSClientRejectionIsPermanent(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"The 'To' number is not a valid phone number.","status":400}`))
	}))
	defer srv.Close()

	_, err := newTestSMSClient(srv.URL).Send(context.Background(), messages.SendRequest{To: "+12405551234", Body: "hi"})
	var pe *messages.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.StatusCode != http.StatusBadRequest || pe.Message != "The 'To' number is not a valid phone number." {
		t.Fatalf("unexpected provider error %+v", pe)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected no retry on 400, got %d attempts", got)
	}
}

func TestSMSClientRequiresCredentials(t *testing.T) {
	c := NewSMSClient(SMSConfig{}, nil)
	if _, err := c.Send(context.Background(), messages.SendRequest{To: "+12405551234", Body: "hi"}); err == nil {
		t.Fatalf("expected error without credentials")
	}
}
