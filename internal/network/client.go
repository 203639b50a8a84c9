package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"casinogw/internal/debuglog"
	"casinogw/internal/metrics"
	"casinogw/internal/telemetry"
)

const (
	DefaultSubmitTimeout     = 10 * time.Second
	DefaultHealthTimeout     = 2 * time.Second
	DefaultMaxSubmissionSize = 4 << 20

	maxErrorBody   = 4 << 10
	maxAccountBody = 64 << 10
	tracerName     = "casinogw/network"
)

// Options configures a Client. BaseURL is the ledger's HTTP root.
type Options struct {
	BaseURL           string
	Origin            string
	SubmitTimeout     time.Duration
	HealthTimeout     time.Duration
	MaxSubmissionSize int
	HTTPClient        *http.Client
	Metrics           *metrics.Metrics
}

type SubmitOptions struct {
	// RequestID is sent as x-request-id; a uuid is generated when empty.
	RequestID string
}

// SubmitResult is the outcome of one submission attempt. Error holds the
// ledger's response text, "timeout", or the transport error.
type SubmitResult struct {
	Accepted  bool
	Error     string
	Status    int
	Timeout   bool
	RequestID string
}

type Account struct {
	Nonce   uint64 `json:"nonce"`
	Balance uint64 `json:"balance"`
}

// Client talks to the ledger's HTTP interface. Each call is a single attempt;
// retry policy belongs to the caller.
type Client struct {
	base    *url.URL
	opts    Options
	http    *http.Client
	metrics *metrics.Metrics
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid ledger url %q", opts.BaseURL)
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = DefaultSubmitTimeout
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = DefaultHealthTimeout
	}
	if opts.MaxSubmissionSize <= 0 {
		opts.MaxSubmissionSize = DefaultMaxSubmissionSize
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{base: base, opts: opts, http: hc, metrics: opts.Metrics}, nil
}

func (c *Client) endpoint(path ...string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(path, "/")
	return u.String()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, d)
}

// Submit posts an encoded submission. Payloads over the size cap are refused
// locally without a network call.
func (c *Client) Submit(ctx context.Context, body []byte, opts SubmitOptions) SubmitResult {
	reqID := opts.RequestID
	if reqID == "" {
		reqID = uuid.NewString()
	}
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "network.submit")
	defer span.End()
	span.SetAttributes(attribute.Int("submit.bytes", len(body)), attribute.String("request.id", reqID))

	if len(body) > c.opts.MaxSubmissionSize {
		c.metrics.IncSubmitTooLarge()
		msg := fmt.Sprintf("submission too large: %d > %d bytes", len(body), c.opts.MaxSubmissionSize)
		span.SetStatus(codes.Error, msg)
		return SubmitResult{Error: msg, Status: http.StatusRequestEntityTooLarge, RequestID: reqID}
	}

	ctx, cancel := withTimeout(ctx, c.opts.SubmitTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("submit"), bytes.NewReader(body))
	if err != nil {
		return SubmitResult{Error: err.Error(), RequestID: reqID}
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("x-request-id", reqID)
	if c.opts.Origin != "" {
		req.Header.Set("Origin", c.opts.Origin)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			c.metrics.IncSubmitTimeout()
			span.SetStatus(codes.Error, "timeout")
			return SubmitResult{Error: "timeout", Timeout: true, RequestID: reqID}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		debuglog.Debugf("submit transport error id=%s err=%v", reqID, err)
		return SubmitResult{Error: err.Error(), RequestID: reqID}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		c.metrics.IncSubmitAccepted()
		return SubmitResult{Accepted: true, Status: resp.StatusCode, RequestID: reqID}
	}
	text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(text))
	if msg == "" {
		msg = fmt.Sprintf("status %d", resp.StatusCode)
	}
	span.SetStatus(codes.Error, msg)
	return SubmitResult{Error: msg, Status: resp.StatusCode, RequestID: reqID}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// GetAccount returns the ledger's view of an account, or nil on any failure
// including an unknown account.
func (c *Client) GetAccount(ctx context.Context, publicKeyHex string) *Account {
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "network.get_account")
	defer span.End()
	ctx, cancel := withTimeout(ctx, c.opts.SubmitTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("account", url.PathEscape(publicKeyHex)), nil)
	if err != nil {
		return nil
	}
	if c.opts.Origin != "" {
		req.Header.Set("Origin", c.opts.Origin)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		debuglog.RateLimitedf("get-account-"+publicKeyHex, 10*time.Second, "get account %s failed: %v", publicKeyHex, err)
		return nil
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	var acct Account
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAccountBody)).Decode(&acct); err != nil {
		span.RecordError(err)
		return nil
	}
	return &acct
}

// HealthCheck reports whether the ledger answers /healthz with a 2xx.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "network.healthz")
	defer span.End()
	ctx, cancel := withTimeout(ctx, c.opts.HealthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("healthz"), nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
