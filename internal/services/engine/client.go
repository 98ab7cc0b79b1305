package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"Aegis/internal/domain/models"
	"Aegis/internal/domain/repository"
	"Aegis/internal/domain/service"
	xhttp "Aegis/pkg/http"
	"Aegis/pkg/validation"
)

// Config holds the decision engine endpoint settings.
type Config struct {
	URL        string
	Path       string
	Timeout    time.Duration
	MaxRetries int
}

// HTTPEngine calls the decision engine over JSON/HTTP.
type HTTPEngine struct {
	baseURL string
	path    string
	timeout time.Duration
	retries int
	client  *xhttp.Client
	metrics repository.Metrics
}

// evaluateRequest is the body posted to the engine.
type evaluateRequest struct {
	EventID    string          `json:"eventId"`
	AccountID  string          `json:"accountId"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt int64           `json:"receivedAt"`
}

// New builds an engine client. The per-call deadline is cfg.Timeout.
func New(cfg Config, metrics repository.Metrics, opts ...xhttp.ClientOption) *HTTPEngine {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	path := cfg.Path
	if path == "" {
		path = "/v1/signals"
	}
	opts = append([]xhttp.ClientOption{xhttp.WithTimeout(timeout)}, opts...)
	return &HTTPEngine{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		path:    path,
		timeout: timeout,
		retries: cfg.MaxRetries,
		client:  xhttp.NewClient(opts...),
		metrics: metrics,
	}
}

var _ service.DecisionEngine = (*HTTPEngine)(nil)

// Evaluate returns validated signal attributes for e. Any transport failure,
// timeout, non-2xx status or malformed body is reported as ErrEngineFailure.
func (h *HTTPEngine) Evaluate(ctx context.Context, e *models.OrderFlowEvent) (*service.EngineResult, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	var out service.EngineResult
	err := h.postJSONWithRetry(ctx, evaluateRequest{
		EventID:    e.ID,
		AccountID:  e.AccountID,
		Payload:    e.Payload,
		ReceivedAt: e.ReceivedAt.UnixMilli(),
	}, &out)
	if err == nil {
		if verr := validation.Struct(ctx, &out); verr != nil {
			err = fmt.Errorf("malformed response: %w", verr)
		}
	}
	h.observe(start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEngineFailure, err)
	}
	return &out, nil
}

func (h *HTTPEngine) postJSON(ctx context.Context, payload interface{}, dest interface{}) error {
	if h.client == nil || h.baseURL == "" {
		return fmt.Errorf("decision engine client not initialized")
	}
	err := h.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    h.baseURL + h.path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", h.path, err)
	}
	return nil
}

// postJSONWithRetry retries transient failures up to h.retries extra times.
func (h *HTTPEngine) postJSONWithRetry(ctx context.Context, payload interface{}, dest interface{}) error {
	var err error
	for i := 0; i <= h.retries; i++ {
		err = h.postJSON(ctx, payload, dest)
		if err == nil || !temporary(err) {
			return err
		}
		select {
		case <-time.After(time.Duration(i+1) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (h *HTTPEngine) observe(start time.Time, err error) {
	if h.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
	default:
		result = "error"
	}
	h.metrics.RecordEngineCall(result, time.Since(start))
}

func temporary(err error) bool {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return !ne.Timeout()
	}
	return false
}
