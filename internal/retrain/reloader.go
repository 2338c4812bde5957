package retrain

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"digitflow/internal/services"
)

// HTTPReloader triggers a reload on a running inference API.
type HTTPReloader struct {
	URL    string
	Token  string
	Client *http.Client
}

// NewHTTPReloader returns a reloader bound to url with a request timeout.
func NewHTTPReloader(url, token string, timeout time.Duration) *HTTPReloader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPReloader{
		URL:    strings.TrimSpace(url),
		Token:  strings.TrimSpace(token),
		Client: &http.Client{Timeout: timeout},
	}
}

// Reload POSTs to the reload endpoint. Transport errors and non-2xx
// responses wrap ErrReloadFailure.
func (r *HTTPReloader) Reload(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, nil)
	if err != nil {
		return services.Wrap(ErrReloadFailure, "", "reload", "build request", err)
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return services.Wrap(ErrReloadFailure, "", "reload", r.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return services.Wrap(ErrReloadFailure, "", "reload",
			fmt.Sprintf("%s returned %d: %s", r.URL, resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
