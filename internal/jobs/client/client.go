package client

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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/loresmith/internal/domain"
	"github.com/yungbote/loresmith/internal/platform/logger"
)

const (
	DefaultTimeout = 5 * time.Minute

	maxBodyBytes = 4 << 20
	tracerName   = "github.com/yungbote/loresmith/internal/jobs/client"
)

type Options struct {
	BaseURL string

	// Timeout bounds every individual HTTP call. It is independent of the poll cadence.
	Timeout time.Duration

	Tokens     TokenSource
	HTTPClient *http.Client
	Log        *logger.Logger
}

// Client talks to the backend job API: POST /jobs and GET /jobs/{id}.
// Submission is not idempotent and no call is retried here; retry policy belongs to
// the lifecycle controller, which deliberately has none.
type Client struct {
	baseURL    string
	timeout    time.Duration
	tokens     TokenSource
	httpClient *http.Client
	log        *logger.Logger
	tracer     trace.Tracer
}

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("baseURL required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse baseURL: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	log := opts.Log
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		timeout:    timeout,
		tokens:     opts.Tokens,
		httpClient: hc,
		log:        log.With("component", "JobClient"),
		tracer:     otel.Tracer(tracerName),
	}, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

// Submit sends a job description to the backend and returns its initial record.
func (c *Client) Submit(ctx context.Context, req domain.JobRequest) (domain.JobRecord, error) {
	if err := validateRequest(req); err != nil {
		return domain.JobRecord{}, err
	}
	ctx, span := c.tracer.Start(ctx, "jobs.submit", trace.WithAttributes(attribute.String("job.type", string(req.Type))))
	defer span.End()

	var rec domain.JobRecord
	err := c.doJSON(ctx, "submit job", http.MethodPost, "/jobs", req, &rec)
	if err == nil && strings.TrimSpace(rec.ID) == "" {
		err = &NetworkError{Op: "submit job", Err: errors.New("malformed response: missing job id")}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Message(err))
		return domain.JobRecord{}, err
	}
	if rec.Type == "" {
		rec.Type = req.Type
	}
	if rec.Status == "" {
		rec.Status = domain.JobPending
	}
	span.SetAttributes(attribute.String("job.id", rec.ID))
	c.log.Debug("job submitted", "job_id", rec.ID, "job_type", rec.Type)
	return rec, nil
}

// Fetch returns the latest record for a job id.
func (c *Client) Fetch(ctx context.Context, jobID string) (domain.JobRecord, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return domain.JobRecord{}, &ValidationError{Field: "id", Message: "job id is required"}
	}
	ctx, span := c.tracer.Start(ctx, "jobs.fetch", trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	var rec domain.JobRecord
	err := c.doJSON(ctx, "fetch job", http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, &rec)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			nf.JobID = jobID
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, Message(err))
		return domain.JobRecord{}, err
	}
	if rec.ID == "" {
		rec.ID = jobID
	}
	span.SetAttributes(attribute.String("job.status", string(rec.Status)), attribute.Int("job.progress", rec.Progress))
	return rec, nil
}

func validateRequest(req domain.JobRequest) error {
	if strings.TrimSpace(string(req.Type)) == "" {
		return &ValidationError{Field: "type", Message: "job type is required"}
	}
	if !req.Type.Valid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown job type %q", req.Type)}
	}
	if req.Payload == nil {
		return &ValidationError{Field: "payload", Message: "payload is required"}
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, op string, method string, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return &ValidationError{Field: "payload", Message: fmt.Sprintf("not encodable: %v", err)}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}
	if err := c.setHeaders(ctx, req, body != nil); err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("auth token: %w", err)}
	}
	otel.GetTextMapPropagator().Inject(callCtx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classifyTransport(ctx, callCtx, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return c.classifyTransport(ctx, callCtx, op, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{}
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return &ValidationError{Message: errorBody(resp.StatusCode, raw), StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return &TimeoutError{Op: op, Err: errors.New(errorBody(resp.StatusCode, raw))}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(errorBody(resp.StatusCode, raw))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// classifyTransport separates our own per-call deadline (TimeoutError) from the caller
// cancelling the parent context, which is returned as-is.
func (c *Client) classifyTransport(parent context.Context, callCtx context.Context, op string, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return parent.Err()
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Timeout: c.timeout, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TimeoutError{Op: op, Timeout: c.timeout, Err: err}
	}
	return &NetworkError{Op: op, Err: err}
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request, hasBody bool) error {
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens == nil {
		return nil
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	if tok = strings.TrimSpace(tok); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return nil
}
