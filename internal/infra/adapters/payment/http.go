package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"telegram-group-access/internal/domain"
)

// maxBody caps provider responses we are willing to decode.
const maxBody = 1 << 20

// doJSON performs one provider call and classifies failures into *domain.GatewayError.
// Network errors, 408, 429 and 5xx are transient; other non-2xx answers are not.
func doJSON(ctx context.Context, client *http.Client, gateway, op, method, url string, header http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &domain.GatewayError{Gateway: gateway, Op: op, Err: err}
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return &domain.GatewayError{Gateway: gateway, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return &domain.GatewayError{Gateway: gateway, Op: op, Transient: isTransientNetErr(err), Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return &domain.GatewayError{Gateway: gateway, Op: op, Transient: true, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.GatewayError{
			Gateway:   gateway,
			Op:        op,
			Transient: resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			Err:       fmt.Errorf("http %d: %s", resp.StatusCode, snippet(raw)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.GatewayError{Gateway: gateway, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// isTransientNetErr treats every transport failure as retryable except our own cancellation.
func isTransientNetErr(err error) bool {
	return !errors.Is(err, context.Canceled)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// verifyHMAC checks a hex HMAC-SHA256 of body. An empty secret disables the check.
func verifyHMAC(secret string, body []byte, signature string) bool {
	if secret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// signHMAC is the counterpart of verifyHMAC, used by the sandbox and tests.
func signHMAC(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
