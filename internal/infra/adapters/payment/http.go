package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const maxProviderBody = 1 << 20

var hundred = decimal.NewFromInt(100)

// statusError carries a non-2xx provider answer so strategies can turn it into
// Success=false instead of a transport error.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider http %d: %s", e.Code, e.Body)
}

// doJSON sends body as JSON and decodes a 2xx answer into out.
func doJSON(ctx context.Context, client *http.Client, method, url string, body any, header http.Header, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return send(client, req, out)
}

func send(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// toMinorUnits converts 13.99 to 1399.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func fromMinorUnits(v int64) decimal.Decimal {
	return decimal.NewFromInt(v).Div(hundred)
}

// hmacHexEqual compares a hex signature against HMAC(secret, data) in constant time.
func hmacHexEqual(newHash func() hash.Hash, secret string, data []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(strings.ToLower(signature)))
	if err != nil {
		return false
	}
	m := hmac.New(newHash, []byte(secret))
	m.Write(data)
	return hmac.Equal(m.Sum(nil), got)
}

// absoluteURL prefixes relative client URLs with the frontend base.
func absoluteURL(base, u string) string {
	if u == "" || strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(u, "/")
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// tokenCache holds a short-lived provider access token. Readers share the
// cached value; a refresh takes the write lock and re-checks before fetching.
type tokenCache struct {
	mu     sync.RWMutex
	token  string
	expiry time.Time
}

// tokenFetcher returns a token and its lifetime.
type tokenFetcher func(ctx context.Context) (string, time.Duration, error)

func (c *tokenCache) get(ctx context.Context, now time.Time, fetch tokenFetcher) (string, error) {
	c.mu.RLock()
	tok, exp := c.token, c.expiry
	c.mu.RUnlock()
	if tok != "" && now.Add(time.Minute).Before(exp) {
		return tok, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && now.Add(time.Minute).Before(c.expiry) {
		return c.token, nil
	}
	tok, ttl, err := fetch(ctx)
	if err != nil {
		return "", err
	}
	c.token, c.expiry = tok, now.Add(ttl)
	return tok, nil
}

func (c *tokenCache) reset() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}
