package payone

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Credentials identifies one merchant account on the gateway. Configured
// externally; read-only to this package.
type Credentials struct {
	MerchantID   string
	SubAccountID string
	PortalID     string
	Key          string
}

// defaultParams returns the fixed API and authentication fields attached to
// every gateway request. The portal key is sent as its MD5 digest, never raw.
func (c Credentials) defaultParams(testMode bool) *Params {
	mode := "live"
	if testMode {
		mode = "test"
	}
	p := NewParams()
	p.Set("aid", c.SubAccountID)
	p.Set("mid", c.MerchantID)
	p.Set("portalid", c.PortalID)
	p.Set("key", md5Hex(c.Key))
	p.Set("api_version", "3.11")
	p.Set("mode", mode)
	p.Set("encoding", "UTF-8")
	return p
}

// ResponseError is the nested error object of a gateway response.
type ResponseError struct {
	ErrorCode       string `json:"ErrorCode"`
	ErrorMessage    string `json:"ErrorMessage"`
	CustomerMessage string `json:"CustomerMessage"`
}

// Response is the parsed JSON body of a gateway call, with the raw body
// retained so it can be persisted verbatim as diagnostic info.
type Response struct {
	Status      string         `json:"Status"`
	RedirectURL string         `json:"RedirectUrl"`
	TxID        string         `json:"TxId"`
	UserID      string         `json:"UserId"`
	ErrorMsg    string         `json:"ErrorMessage"`
	Error       *ResponseError `json:"Error"`

	raw []byte
}

// Raw returns the verbatim response body.
func (r *Response) Raw() []byte { return r.raw }

// CustomerMessage extracts the user-facing decline message, preferring the
// nested error object over the top-level message.
func (r *Response) CustomerMessage() string {
	if r.Error != nil && r.Error.CustomerMessage != "" {
		return r.Error.CustomerMessage
	}
	if r.ErrorMsg != "" {
		return r.ErrorMsg
	}
	return "Unknown error"
}

// Client performs signed HTTP calls against the gateway's server API. One
// synchronous POST per authorization attempt, no retries.
type Client struct {
	http        *http.Client
	endpoint    string
	credentials Credentials
	testMode    bool
	logger      zerolog.Logger
}

// NewClient constructs a gateway client. The HTTP client's timeout bounds
// how long a slow gateway can block the handling request.
func NewClient(httpClient *http.Client, endpoint string, creds Credentials, testMode bool, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = HTTPClient(20 * time.Second)
	}
	return &Client{
		http:        httpClient,
		endpoint:    endpoint,
		credentials: creds,
		testMode:    testMode,
		logger:      logger,
	}
}

// HTTPClient returns an HTTP client configured for gateway calls, with
// tracing on the transport.
func HTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Credentials exposes the configured merchant credentials, e.g. for the
// card-check payload.
func (c *Client) Credentials() Credentials { return c.credentials }

// TestMode reports whether the client addresses the gateway's test
// environment.
func (c *Client) TestMode() bool { return c.testMode }

// Authorize issues the authorization request and returns the parsed
// response. Transport failures, non-2xx statuses and unparseable bodies are
// reported as *CommunicationError carrying whatever diagnostic payload was
// available.
func (c *Client) Authorize(ctx context.Context, params *Params) (*Response, error) {
	merged := NewParams()
	merged.Merge(params)
	merged.Merge(c.credentials.defaultParams(c.testMode))

	ctx, span := otel.Tracer("payone.Client").Start(ctx, "PayoneClient.Authorize")
	defer span.End()
	span.SetAttributes(
		attribute.String("payone.mode", map[bool]string{true: "test", false: "live"}[c.testMode]),
	)
	if ct, ok := merged.Get("clearingtype"); ok {
		span.SetAttributes(attribute.String("payone.clearingtype", ct))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(merged.Values().Encode()))
	if err != nil {
		return nil, &CommunicationError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, &CommunicationError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := readAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, &CommunicationError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("payone gateway error")
		return nil, &CommunicationError{Detail: diagnosticJSON(body), Err: errHTTPStatus(resp.StatusCode)}
	}

	parsed := &Response{raw: body}
	if err := json.Unmarshal(body, parsed); err != nil {
		c.logger.Error().Err(err).Str("body", string(body)).Msg("payone response not parseable")
		return nil, &CommunicationError{Detail: diagnosticJSON(body), Err: err}
	}
	span.SetAttributes(attribute.String("payone.status", parsed.Status))
	return parsed, nil
}

// diagnosticJSON returns the body verbatim when it is valid JSON, otherwise
// wraps the raw text so it can still be stored on the payment record.
func diagnosticJSON(body []byte) json.RawMessage {
	if json.Valid(body) {
		return body
	}
	wrapped, _ := json.Marshal(map[string]any{"error": true, "detail": string(body)})
	return wrapped
}
