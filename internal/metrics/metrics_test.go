package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	c := WebhooksTotal.WithLabelValues("sms", "ok")
	before := testutil.ToFloat64(c)
	c.Inc()
	if got := testutil.ToFloat64(c); got != before+1 {
		t.Fatalf("expected %v, got %v", before+1, got)
	}
}

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	StaleCallsExpiredTotal.Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "wrapdesk_stale_calls_expired_total") {
		t.Fatalf("metrics output missing counter:\n%s", body)
	}
}
