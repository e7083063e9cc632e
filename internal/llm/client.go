package llm

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

// DefaultBaseURL is used when no endpoint has been configured.
const DefaultBaseURL = "http://127.0.0.1:11434"

// UnreachableMessage replaces every transport-level failure, so callers can tell
// "Ollama is not running" apart from errors Ollama itself returned.
const UnreachableMessage = "Connection to Ollama failed. Ensure Ollama is running and reachable."

// Result is the uniform answer to a one-shot request.
//
// Data is a json.RawMessage when Ollama answered with JSON, a string when it
// answered with anything else, and nil for bodiless successes.
type Result struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Status  int         `json:"status,omitempty"`
}

// Failure builds a failed Result.
func Failure(message string) Result {
	return Result{Success: false, Error: message}
}

// UpstreamError is a non-2xx answer from Ollama.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("Ollama API Error: %d - %s", e.Status, e.Body)
}

// OllamaClient talks to a single Ollama server.
//
// There is no request timeout. An exchange is bounded only by the caller's context.
type OllamaClient struct {
	client  *http.Client
	baseURL func(context.Context) string
	logger  *zap.Logger
}

// ClientOption configures an OllamaClient.
type ClientOption func(*OllamaClient)

// WithBaseURL pins the base URL.
func WithBaseURL(base string) ClientOption {
	return func(c *OllamaClient) {
		c.baseURL = func(context.Context) string { return base }
	}
}

// WithBaseURLFunc resolves the base URL on every request, e.g. from the config store.
func WithBaseURLFunc(fn func(context.Context) string) ClientOption {
	return func(c *OllamaClient) {
		c.baseURL = fn
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *OllamaClient) {
		c.client = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *OllamaClient) {
		c.logger = logger
	}
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(opts ...ClientOption) *OllamaClient {
	c := &OllamaClient{
		client:  &http.Client{},
		baseURL: func(context.Context) string { return DefaultBaseURL },
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the base URL the next request would use.
func (c *OllamaClient) BaseURL(ctx context.Context) string {
	if base := c.baseURL(ctx); base != "" {
		return base
	}
	return DefaultBaseURL
}

// Do performs req as exactly one HTTP exchange.
func (c *OllamaClient) Do(ctx context.Context, req Request) Result {
	body, err := req.Body()
	if err != nil {
		return Failure(fmt.Sprintf("encode request body: %v", err))
	}
	return c.Exchange(ctx, req.Endpoint(), req.Method(), req.Header(), body)
}

// Exchange performs one HTTP exchange and folds every outcome into a Result.
//
//   - non-2xx: failure carrying the status and response text
//   - 2xx JSON: success with the JSON payload
//   - 2xx other: success with the raw text
//   - 2xx empty from /api/delete: bare success
//   - transport failure: UnreachableMessage
func (c *OllamaClient) Exchange(ctx context.Context, endpoint, method string, header http.Header, body []byte) Result {
	resp, err := c.open(ctx, endpoint, method, header, body)
	if err != nil {
		return c.failure(endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.failure(endpoint, err)
	}

	if len(bytes.TrimSpace(data)) == 0 && isDelete(endpoint) {
		return Result{Success: true, Status: resp.StatusCode}
	}
	if json.Valid(data) {
		return Result{Success: true, Data: json.RawMessage(data), Status: resp.StatusCode}
	}
	return Result{Success: true, Data: string(data), Status: resp.StatusCode}
}

// open sends the request and returns the response of a 2xx exchange.
// A non-2xx response is drained, closed and returned as *UpstreamError.
func (c *OllamaClient) open(ctx context.Context, endpoint, method string, header http.Header, body []byte) (*http.Response, error) {
	target, err := c.resolve(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = append([]string(nil), v...)
	}

	c.logger.Debug("Forwarding request to Ollama", zap.String("method", method), zap.String("url", target))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		text, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("Ollama returned status %d but failed to read body: %w", resp.StatusCode, readErr)
		}
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(text)}
	}
	return resp, nil
}

// resolve joins endpoint onto the base URL. The result must stay on the base host.
func (c *OllamaClient) resolve(ctx context.Context, endpoint string) (string, error) {
	base, err := url.Parse(c.BaseURL(ctx))
	if err != nil {
		return "", fmt.Errorf("invalid Ollama base URL: %w", err)
	}
	cleaned, err := CleanEndpoint(endpoint)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(cleaned)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	target := base.ResolveReference(ref)
	if target.Host != base.Host || target.Scheme != base.Scheme {
		return "", fmt.Errorf("endpoint %q leaves the Ollama host", endpoint)
	}
	return target.String(), nil
}

func (c *OllamaClient) failure(endpoint string, err error) Result {
	result := Failure(ErrorMessage(err))
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		result.Status = upstream.Status
	}
	c.logger.Debug("Ollama request failed", zap.String("endpoint", endpoint), zap.Error(err))
	return result
}

// ErrorMessage is the caller-facing text for err.
func ErrorMessage(err error) string {
	if IsUnreachable(err) {
		return UnreachableMessage
	}
	return err.Error()
}

// IsUnreachable reports whether err means Ollama could not be reached at all:
// refused or reset connections, DNS and routing failures, TLS failures.
// Context cancellation is not a transport failure.
func IsUnreachable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return false
	}

	var (
		opErr       *net.OpError
		dnsErr      *net.DNSError
		unknownCA   x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidCert x509.CertificateInvalidError
		recordErr   tls.RecordHeaderError
	)
	switch {
	case errors.As(err, &opErr), errors.As(err, &dnsErr),
		errors.As(err, &unknownCA), errors.As(err, &hostnameErr),
		errors.As(err, &invalidCert), errors.As(err, &recordErr):
		return true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host")
}

func isDelete(endpoint string) bool {
	path := endpoint
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.TrimRight(path, "/") == EndpointDelete
}

// Model is one entry of GET /api/tags.
type Model struct {
	Name       string       `json:"name"`
	Model      string       `json:"model"`
	ModifiedAt string       `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details"`
}

// ModelDetails is the details block of a tag.
type ModelDetails struct {
	Format            string `json:"format"`
	Family            string `json:"family"`
	ParameterSize     string `json:"parameter_size"`
	QuantizationLevel string `json:"quantization_level"`
}

// ModelsResponse represents the response from /api/tags.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// ListModels returns the locally available models.
func (c *OllamaClient) ListModels(ctx context.Context) ([]Model, error) {
	result := c.Do(ctx, ListModels{})
	if !result.Success {
		return nil, errors.New(result.Error)
	}
	raw, ok := result.Data.(json.RawMessage)
	if !ok {
		return nil, fmt.Errorf("unexpected /api/tags response: %v", result.Data)
	}
	var resp ModelsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode models response: %w", err)
	}
	return resp.Models, nil
}

// HealthCheck checks if Ollama is running.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	result := c.Do(ctx, TestConnection{})
	if !result.Success {
		return errors.New(result.Error)
	}
	return nil
}
