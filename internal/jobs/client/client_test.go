package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/loresmith/internal/domain"
	"github.com/yungbote/loresmith/internal/jobs/jobstest"
)

func newTestClient(t *testing.T, b *jobstest.Backend, opts Options) *Client {
	t.Helper()
	opts.BaseURL = b.URL
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestSubmitReturnsPendingRecord(t *testing.T) {
	b := jobstest.New(t)
	c := newTestClient(t, b, Options{Tokens: StaticToken("key-123")})

	rec, err := c.Submit(context.Background(), domain.JobRequest{
		Type:    domain.TaskGenerateCharacters,
		Payload: map[string]any{"theme": "fantasy", "count": 3},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.ID != "job-1" {
		t.Fatalf("id: want=job-1 got=%s", rec.ID)
	}
	if rec.Status != domain.JobPending {
		t.Fatalf("status: want=pending got=%s", rec.Status)
	}
	if got := b.AuthHeaders(); len(got) != 1 || got[0] != "Bearer key-123" {
		t.Fatalf("auth headers: got=%v", got)
	}
	sub := b.Submitted()
	if len(sub) != 1 || sub[0].Payload["theme"] != "fantasy" {
		t.Fatalf("submitted payload: got=%v", sub)
	}
}

func TestSubmitRejectsMalformedRequestLocally(t *testing.T) {
	b := jobstest.New(t)
	c := newTestClient(t, b, Options{})

	cases := []domain.JobRequest{
		{Type: "", Payload: map[string]any{}},
		{Type: "summon_dragon", Payload: map[string]any{}},
		{Type: domain.TaskCreateWorld},
		{Type: domain.TaskCreateWorld, Payload: map[string]any{"bad": make(chan int)}},
	}
	for i, req := range cases {
		_, err := c.Submit(context.Background(), req)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("case %d: want ValidationError got=%v", i, err)
		}
		if IsFatal(err) {
			t.Fatalf("case %d: validation errors are not handle-fatal", i)
		}
	}
	if n := len(b.Submitted()); n != 0 {
		t.Fatalf("backend saw %d submissions for invalid requests", n)
	}
}

func TestSubmitClassifiesBackendStatuses(t *testing.T) {
	b := jobstest.New(t)
	c := newTestClient(t, b, Options{})
	req := domain.JobRequest{Type: domain.TaskGenerateRelics, Payload: map[string]any{"theme": "noir"}}

	b.FailSubmit(http.StatusUnprocessableEntity)
	_, err := c.Submit(context.Background(), req)
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("422: want ValidationError got=%v", err)
	}

	b.FailSubmit(http.StatusBadGateway)
	_, err = c.Submit(context.Background(), req)
	var ne *NetworkError
	if !errors.As(err, &ne) || ne.StatusCode != http.StatusBadGateway {
		t.Fatalf("502: want NetworkError got=%v", err)
	}
	if !IsFatal(err) {
		t.Fatalf("network errors are fatal")
	}
	if msg := Message(err); !strings.Contains(msg, "trouble") {
		t.Fatalf("message: got=%q", msg)
	}
}

func TestFetchUnknownJobIsNotFound(t *testing.T) {
	b := jobstest.New(t)
	c := newTestClient(t, b, Options{})

	_, err := c.Fetch(context.Background(), "missing")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("want NotFoundError got=%v", err)
	}
	if nf.JobID != "missing" {
		t.Fatalf("job id: want=missing got=%q", nf.JobID)
	}
	if !IsFatal(err) {
		t.Fatalf("not found is fatal")
	}
}

func TestFetchTimeoutIsTransportError(t *testing.T) {
	b := jobstest.New(t)
	b.Default(jobstest.Step{Status: domain.JobProcessing, Delay: 500 * time.Millisecond})
	c := newTestClient(t, b, Options{Timeout: 50 * time.Millisecond})

	rec, err := c.Submit(context.Background(), domain.JobRequest{Type: domain.TaskGenerateEvents, Payload: map[string]any{}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_, err = c.Fetch(context.Background(), rec.ID)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("want TimeoutError got=%v", err)
	}
	if !IsFatal(err) {
		t.Fatalf("timeouts are fatal")
	}
	if !strings.Contains(Message(err), "timed out") {
		t.Fatalf("message: got=%q", Message(err))
	}
}

func TestFetchCallerCancellationIsNotFatal(t *testing.T) {
	b := jobstest.New(t)
	b.Default(jobstest.Step{Status: domain.JobProcessing, Delay: time.Second})
	c := newTestClient(t, b, Options{})

	rec, err := c.Submit(context.Background(), domain.JobRequest{Type: domain.TaskGenerateEvents, Payload: map[string]any{}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err = c.Fetch(ctx, rec.ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled got=%v", err)
	}
	if IsFatal(err) {
		t.Fatalf("cancellation must not be fatal")
	}
}

func TestSignedTokenCarriesUserID(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	src := &SignedToken{Secret: []byte("s3cret"), Issuer: "loresmith", TTL: time.Minute, now: func() time.Time { return fixed }}

	raw, err := src.Token(WithUserID(context.Background(), 42))
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	var claims serviceClaims
	_, err = jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return []byte("s3cret"), nil },
		jwt.WithTimeFunc(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 42 || claims.Issuer != "loresmith" {
		t.Fatalf("claims: got user_id=%d iss=%q", claims.UserID, claims.Issuer)
	}
	if _, err := (&SignedToken{}).Token(context.Background()); err == nil {
		t.Fatalf("missing secret must error")
	}
}

func TestJobFailedMessageVerbatim(t *testing.T) {
	if got := (&JobFailedError{Message: "dragon refused"}).Error(); got != "dragon refused" {
		t.Fatalf("verbatim: got=%q", got)
	}
	if got := Message(&JobFailedError{}); got != "Job failed" {
		t.Fatalf("fallback: got=%q", got)
	}
}
