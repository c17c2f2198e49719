package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// APIKeyHeader carries the API key on signed venue requests.
const APIKeyHeader = "X-MBX-APIKEY"

// HMACAuth holds the credentials for HMAC-SHA256 signed REST requests.
type HMACAuth struct {
	Key    string
	Secret string
	// RecvWindow bounds how long the venue accepts the request after its
	// timestamp. Zero omits the parameter.
	RecvWindow time.Duration
}

// Sign returns the hex-encoded HMAC-SHA256 of payload keyed by the secret.
func (h *HMACAuth) Sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignParams stamps params with the current time and appends the signature.
// The returned string is the full query/body to send.
func (h *HMACAuth) SignParams(params url.Values) string {
	return h.SignParamsAt(params, time.Now().UnixMilli())
}

// SignParamsAt is like SignParams but lets the caller supply the Unix
// millisecond timestamp.
func (h *HMACAuth) SignParamsAt(params url.Values, unixMillis int64) string {
	signed := url.Values{}
	for k, v := range params {
		signed[k] = v
	}
	signed.Set("timestamp", strconv.FormatInt(unixMillis, 10))
	if h.RecvWindow > 0 {
		signed.Set("recvWindow", strconv.FormatInt(h.RecvWindow.Milliseconds(), 10))
	}
	// The signature covers the encoded parameters and must come last.
	encoded := signed.Encode()
	return encoded + "&signature=" + h.Sign(encoded)
}

// Headers returns the headers that accompany a signed request.
func (h *HMACAuth) Headers() map[string]string {
	return map[string]string{APIKeyHeader: h.Key}
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
