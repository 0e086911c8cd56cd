package applications

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/dot-do/entitykernel/pkg/version"
)

// HTTPBinding is a kernel.ServiceBinding that issues requests against one
// downstream service's base URL.
type HTTPBinding struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBinding returns a binding that joins baseURL with each hook's
// "{HTTP-verb} {path}" method string.
func NewHTTPBinding(baseURL string, client *http.Client) *HTTPBinding {
	return &HTTPBinding{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Do issues method ("VERB /path") against the bound service with headers and
// body.
func (b *HTTPBinding) Do(ctx context.Context, method string, headers map[string]string, body []byte) (int, error) {
	verb, path, ok := strings.Cut(strings.TrimSpace(method), " ")
	if !ok {
		verb, path = http.MethodPost, method
	}

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(verb), b.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func envOrEmpty(key string) string {
	return os.Getenv(key)
}
