// Package transport issues HTTP requests on behalf of the resolver and the
// downloader. Each Session owns its own cookie jar so concurrent tasks never
// contaminate each other's server-side state.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
	acceptLanguage = "zh-CN,zh;q=0.9,en;q=0.8"
)

// Session is a cookie-carrying HTTP client with a bounded retry policy.
// Failed calls are retried with a fixed pause up to the configured count
// before the error surfaces to the caller.
//
// Page fetches run against a client with a whole-exchange deadline. Streamed
// downloads use a second client sharing the same jar: dial, TLS handshake,
// and response headers are each bounded by the timeout, but the body may be
// read for as long as data keeps arriving. ctx still cancels either path.
type Session struct {
	client  *http.Client
	stream  *http.Client
	retries int
}

// NewSession returns a Session with a fresh cookie jar.
func NewSession(timeout time.Duration, retries int) *Session {
	jar, _ := cookiejar.New(nil)
	if retries < 0 {
		retries = 0
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{Timeout: timeout}).DialContext
	tr.TLSHandshakeTimeout = timeout
	tr.ResponseHeaderTimeout = timeout
	return &Session{
		client: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		stream: &http.Client{
			Transport: tr,
			Jar:       jar,
		},
		retries: retries,
	}
}

// Get fetches rawURL and returns the response body as text.
func (s *Session) Get(ctx context.Context, rawURL, referer string) (string, error) {
	return s.retrieve(ctx, func() (*http.Request, error) {
		return s.newRequest(ctx, http.MethodGet, rawURL, nil, referer)
	})
}

// PostForm submits form as application/x-www-form-urlencoded and returns the
// response body as text.
func (s *Session) PostForm(ctx context.Context, rawURL string, form url.Values, referer string) (string, error) {
	return s.retrieve(ctx, func() (*http.Request, error) {
		req, err := s.newRequest(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()), referer)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
}

// Stream opens rawURL for reading and returns the raw response. The caller
// owns the body, and may read it for longer than the session timeout as long
// as bytes keep flowing. Connection establishment is retried; mid-stream
// failures are the caller's to handle (the orchestrator retries whole tasks).
func (s *Session) Stream(ctx context.Context, rawURL string) (*http.Response, error) {
	var resp *http.Response
	operation := func() error {
		req, err := s.newRequest(ctx, http.MethodGet, rawURL, nil, "")
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err = s.stream.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
		}
		return nil
	}
	if err := backoff.Retry(operation, s.policy(ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Session) retrieve(ctx context.Context, build func() (*http.Request, error)) (string, error) {
	var body string
	operation := func() error {
		req, err := build()
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, req.URL)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = string(data)
		return nil
	}
	if err := backoff.Retry(operation, s.policy(ctx)); err != nil {
		return "", err
	}
	return body, nil
}

// policy yields one initial attempt plus s.retries re-attempts, paused by a
// fixed second, and aborts early when ctx is cancelled.
func (s *Session) policy(ctx context.Context) backoff.BackOffContext {
	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), uint64(s.retries)),
		ctx,
	)
}

func (s *Session) newRequest(ctx context.Context, method, rawURL string, body io.Reader, referer string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", acceptLanguage)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	return req, nil
}
