package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"wrapdesk/internal/metrics"
	"wrapdesk/pkg/logger"
)

// Signature computes X-Twilio-Signature: base64(HMAC-SHA1(authToken,
// fullURL + each POST param name and value, sorted by name)).
func Signature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		vals := append([]string(nil), params[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			b.WriteString(k)
			b.WriteString(v)
		}
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// RequireTwilioSignature rejects webhook posts not signed with authToken.
// publicBase is the externally visible origin Twilio called; behind a proxy
// the request's own host is not what Twilio signed.
func RequireTwilioSignature(authToken, publicBase string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			metrics.WebhooksTotal.WithLabelValues(c.FullPath(), "bad_form").Inc()
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		got := c.GetHeader("X-Twilio-Signature")
		want := Signature(authToken, requestURL(c.Request, publicBase), c.Request.PostForm)
		if got == "" || !hmac.Equal([]byte(got), []byte(want)) {
			logger.FromGin(c).Warn("twilio signature mismatch", "path", c.Request.URL.Path)
			metrics.WebhooksTotal.WithLabelValues(c.FullPath(), "bad_signature").Inc()
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}

func requestURL(r *http.Request, publicBase string) string {
	if publicBase != "" {
		return strings.TrimRight(publicBase, "/") + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
