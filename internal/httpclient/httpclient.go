// Package httpclient defines flowtest's HTTP transport contract (spec §6)
// and a default net/http-backed implementation. The request strategy
// (internal/dispatch) depends only on the Client interface, so a test
// double or alternate transport can be substituted without touching the
// dispatcher.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	flowtesterrors "github.com/alexisbeaulieu97/flowtest/pkg/errors"
)

// Request is the templated, already-interpolated HTTP request the request
// strategy builds from a step's `request` block (spec §4.3.1).
type Request struct {
	Method      string
	URL         string
	Headers     map[string]string
	Query       map[string]string
	Body        interface{}
	TimeoutMs   int
	Certificate string
}

// Response is the normalised result of executing a Request.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       interface{}
	SizeBytes  int
	DurationMs int64
}

// Client executes interpolated requests. Execute returns a *flowtesterrors.HttpError
// on transport failure (timeout, network, cancellation).
type Client interface {
	Execute(ctx context.Context, req Request) (Response, error)
	// SetBaseURL configures the base URL the request strategy prefixes
	// relative URLs with (spec §4.2 step 5, §4.3.3 step 4).
	SetBaseURL(baseURL string)
	BaseURL() string
	// SetDefaultTimeout configures the fallback timeout used when a
	// request omits its own timeout.
	SetDefaultTimeout(timeout time.Duration)
}

// DefaultClient is the standard net/http-backed Client implementation.
type DefaultClient struct {
	httpClient     *http.Client
	baseURL        string
	defaultTimeout time.Duration
}

// New creates a DefaultClient with a 60s default timeout (spec §5).
func New() *DefaultClient {
	return &DefaultClient{
		httpClient:     &http.Client{},
		defaultTimeout: 60 * time.Second,
	}
}

// SetBaseURL implements Client.
func (c *DefaultClient) SetBaseURL(baseURL string) { c.baseURL = baseURL }

// BaseURL implements Client.
func (c *DefaultClient) BaseURL() string { return c.baseURL }

// SetDefaultTimeout implements Client.
func (c *DefaultClient) SetDefaultTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.defaultTimeout = timeout
	}
}

// Execute implements Client.
func (c *DefaultClient) Execute(ctx context.Context, req Request) (Response, error) {
	timeout := c.defaultTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return Response{}, flowtesterrors.NewHttpError(flowtesterrors.HttpErrorNetwork, err)
	}

	fullURL, err := withQuery(req.URL, req.Query)
	if err != nil {
		return Response{}, flowtesterrors.NewHttpError(flowtesterrors.HttpErrorNetwork, err)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, strings.ToUpper(req.Method), fullURL, body)
	if err != nil {
		return Response{}, flowtesterrors.NewHttpError(flowtesterrors.HttpErrorNetwork, err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	client := c.httpClient
	if req.Certificate != "" {
		client = clientWithCertificate(c.httpClient, req.Certificate)
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return Response{}, flowtesterrors.NewHttpError(flowtesterrors.HttpErrorTimeout, err)
		}
		if errors.Is(reqCtx.Err(), context.Canceled) {
			return Response{}, flowtesterrors.NewHttpError(flowtesterrors.HttpErrorTransportCancelled, err)
		}
		return Response{}, flowtesterrors.NewHttpError(flowtesterrors.HttpErrorNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, flowtesterrors.NewHttpError(flowtesterrors.HttpErrorNetwork, err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		headers[k] = strings.Join(v, ", ")
	}

	return Response{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       decodeBody(raw, headers),
		SizeBytes:  len(raw),
		DurationMs: duration.Milliseconds(),
	}, nil
}

func encodeBody(body interface{}) (io.Reader, string, error) {
	if body == nil {
		return nil, "", nil
	}
	if s, ok := body.(string); ok {
		return strings.NewReader(s), "", nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, "", err
	}
	return bytes.NewReader(raw), "application/json", nil
}

func decodeBody(raw []byte, headers map[string]string) interface{} {
	if len(raw) == 0 {
		return nil
	}
	if isJSON(headers) {
		var parsed interface{}
		if err := json.Unmarshal(raw, &parsed); err == nil {
			return parsed
		}
	}
	return string(raw)
}

func isJSON(headers map[string]string) bool {
	for k, v := range headers {
		if strings.EqualFold(k, "Content-Type") && strings.Contains(v, "json") {
			return true
		}
	}
	return false
}

func withQuery(rawURL string, query map[string]string) (string, error) {
	if len(query) == 0 {
		return rawURL, nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := parsed.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// clientWithCertificate derives a client configured to present certPath as
// a client certificate. Resolution failures fall back to the base client;
// the caller's assertion/error reporting surfaces any resulting TLS failure.
func clientWithCertificate(base *http.Client, certPath string) *http.Client {
	cert, err := tls.LoadX509KeyPair(certPath, certPath)
	if err != nil {
		return base
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
	}
	return &http.Client{Transport: transport, Timeout: base.Timeout}
}
