package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Aegis/internal/domain/models"
	"Aegis/internal/domain/service"
	"Aegis/internal/repository"
	"Aegis/internal/service/ratelimit"
	"Aegis/internal/usecase"
	"Aegis/pkg/auth"
	"Aegis/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopMetrics struct{}

func (nopMetrics) RecordIngest(string)                    {}
func (nopMetrics) RecordEngineCall(string, time.Duration) {}
func (nopMetrics) RecordSignal(string)                    {}
func (nopMetrics) RecordError(string)                     {}
func (nopMetrics) RealtimeConnected(int)                  {}
func (nopMetrics) RecordRealtimeMessage(string, string)   {}

type stubQueue struct {
	err error
}

func (q *stubQueue) Enqueue(_ context.Context, eventID string) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	return "job-" + eventID, nil
}

func (q *stubQueue) Status(context.Context, string) (models.JobStatus, error) {
	return models.JobQueued, nil
}

func (q *stubQueue) Ping(context.Context) error { return q.err }

type stubEngine struct{}

func (stubEngine) Evaluate(context.Context, *models.OrderFlowEvent) (*service.EngineResult, error) {
	conf := 0.6
	return &service.EngineResult{Symbol: "ES", Direction: models.DirectionLong, Confidence: &conf, Rationale: "stub"}, nil
}

type testAPI struct {
	e        *echo.Echo
	store    *repository.MemoryStore
	queue    *stubQueue
	verifier *auth.Verifier
}

func newTestAPI(t *testing.T, limiter *ratelimit.Limiter) *testAPI {
	t.Helper()
	store := repository.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.PutAccount(ctx, &models.Account{ID: "acct-1", UserID: "user-1"}))
	require.NoError(t, store.PutAccount(ctx, &models.Account{ID: "acct-2", UserID: "user-2"}))

	v := auth.NewVerifier("test-secret", "aegis")
	guards := RouteGuards{
		RequireAuth:  auth.Middleware(v, true),
		OptionalAuth: auth.Middleware(v, false, auth.AllowQueryToken()),
	}
	if limiter != nil {
		guards.RateLimit = limiter.Middleware(func(c echo.Context) string {
			if cl := auth.ClaimsFrom(c); cl != nil {
				return "user:" + cl.UserID()
			}
			return ""
		})
	}

	q := &stubQueue{}
	lgr := logger.Nop()
	gw := usecase.NewOrderFlowGateway(store, store, q, nopMetrics{}, lgr)
	signals := usecase.NewSignalsUsecase(store, store, nopMetrics{}, lgr)

	e := echo.New()
	NewOrderFlowEchoHandler(lgr, gw, guards).RegisterRoutes(e)
	NewSignalsEchoHandler(lgr, signals, guards).RegisterRoutes(e)
	NewHealthEchoHandler(map[string]Checker{"store": store.Ping, "queue": q.Ping}).RegisterRoutes(e)

	return &testAPI{e: e, store: store, queue: q, verifier: v}
}

func (a *testAPI) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := a.verifier.Issue(userID, userID+"@example.com", "trader", time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *testAPI) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

const orderflowBody = `{"accountId":"acct-1","payload":{"symbol":"ES","qty":2,"side":"BUY"}}`

func TestPostOrderFlow(t *testing.T) {
	a := newTestAPI(t, nil)
	tok := a.token(t, "user-1")

	rec, out := a.do(t, http.MethodPost, "/orderflow", tok, orderflowBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	eventID, _ := out["eventId"].(string)
	require.NotEmpty(t, eventID)

	_, err := a.store.GetEvent(context.Background(), eventID)
	assert.NoError(t, err)
	assert.Len(t, a.store.AuditEntries(), 1)
}

func TestPostOrderFlowErrors(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		body   string
		status int
		code   string
	}{
		{"no token", "", orderflowBody, http.StatusUnauthorized, "ERR_UNAUTHORIZED"},
		{"bad token", "not-a-jwt", orderflowBody, http.StatusUnauthorized, "ERR_UNAUTHORIZED"},
		{"foreign account", "user-2", orderflowBody, http.StatusNotFound, "ERR_NOT_FOUND"},
		{"missing account", "user-1", `{"payload":{"symbol":"ES","qty":1,"side":"BUY"}}`, http.StatusBadRequest, "ERR_VALIDATION"},
		{"unknown envelope field", "user-1", `{"accountId":"acct-1","payload":{},"extra":1}`, http.StatusBadRequest, "ERR_VALIDATION"},
		{"invalid payload", "user-1", `{"accountId":"acct-1","payload":{"symbol":"ES","qty":0,"side":"BUY"}}`, http.StatusBadRequest, "ERR_VALIDATION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAPI(t, nil)
			tok := tt.token
			if tok == "user-1" || tok == "user-2" {
				tok = a.token(t, tok)
			}

			rec, out := a.do(t, http.MethodPost, "/orderflow", tok, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, out["code"])
			if tt.code == "ERR_VALIDATION" {
				assert.NotEmpty(t, out["details"])
			}
			events, _ := a.store.Counts()
			assert.Zero(t, events)
		})
	}
}

func TestQueryTokenRejectedOutsideWebsocket(t *testing.T) {
	a := newTestAPI(t, nil)
	tok := a.token(t, "user-1")

	rec, out := a.do(t, http.MethodPost, "/orderflow?token="+tok, "", orderflowBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "ERR_UNAUTHORIZED", out["code"])

	rec, _ = a.do(t, http.MethodGet, "/api/signals?token="+tok, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPostOrderFlowQueueUnavailable(t *testing.T) {
	a := newTestAPI(t, nil)
	a.queue.err = errors.New("redis down")

	rec, out := a.do(t, http.MethodPost, "/orderflow", a.token(t, "user-1"), orderflowBody)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "ERR_UNAVAILABLE", out["code"])
}

func TestPostOrderFlowRateLimited(t *testing.T) {
	a := newTestAPI(t, ratelimit.New(0.001, 1, time.Minute))
	tok := a.token(t, "user-1")

	rec, _ := a.do(t, http.MethodPost, "/orderflow", tok, orderflowBody)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, out := a.do(t, http.MethodPost, "/orderflow", tok, orderflowBody)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "ERR_RATE_LIMITED", out["code"])
}

func createSignal(t *testing.T, a *testAPI) string {
	t.Helper()
	rec, out := a.do(t, http.MethodPost, "/orderflow", a.token(t, "user-1"), orderflowBody)
	require.Equal(t, http.StatusOK, rec.Code)

	w := usecase.NewSignalWorker(a.store, stubEngine{}, nil, nil, nopMetrics{}, logger.Nop(), time.Minute)
	id, err := w.Process(context.Background(), models.Job{ID: "j-1", OrderFlowEventID: out["eventId"].(string)})
	require.NoError(t, err)
	return id
}

func TestSignalsEndpoints(t *testing.T) {
	a := newTestAPI(t, nil)
	id := createSignal(t, a)
	owner := a.token(t, "user-1")
	other := a.token(t, "user-2")

	rec, out := a.do(t, http.MethodGet, "/api/signals", owner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, out["total"])
	listed := out["rows"].([]interface{})[0].(map[string]interface{})
	flow := listed["orderFlow"].(map[string]interface{})
	assert.Equal(t, listed["orderFlowEventId"], flow["id"])
	assert.Equal(t, "ES", flow["payload"].(map[string]interface{})["symbol"])

	rec, out = a.do(t, http.MethodGet, "/api/signals?accountId=acct-1&limit=10", owner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, out["total"])

	rec, out = a.do(t, http.MethodGet, "/api/signals?limit=500", owner, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ERR_VALIDATION", out["code"])

	rec, out = a.do(t, http.MethodGet, "/api/signals", other, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, out["total"])

	rec, out = a.do(t, http.MethodGet, "/api/signals/"+id, owner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	sig := out["signal"].(map[string]interface{})
	assert.Equal(t, "PENDING", sig["status"])
	assert.Len(t, sig["decisions"], 1)
	assert.Equal(t, "acct-1", sig["orderFlow"].(map[string]interface{})["accountId"])

	rec, _ = a.do(t, http.MethodGet, "/api/signals/"+id, other, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = a.do(t, http.MethodGet, "/api/signals/"+id, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAppendDecisionEndpoint(t *testing.T) {
	a := newTestAPI(t, nil)
	id := createSignal(t, a)
	owner := a.token(t, "user-1")
	path := "/api/signals/" + id + "/decisions"

	rec, out := a.do(t, http.MethodPost, path, owner, `{"rationale":"confirmed","nextAction":"ACTIVATE","confidence":0.9}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	d := out["decision"].(map[string]interface{})
	assert.Equal(t, "human", d["actor"])
	assert.Equal(t, "ACTIVE", out["signal"].(map[string]interface{})["status"])

	rec, out = a.do(t, http.MethodPost, path, owner, `{"rationale":"late","nextAction":"REJECT"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ERR_INVALID_TRANSITION", out["code"])

	rec, out = a.do(t, http.MethodPost, path, owner, `{"nextAction":"CLOSE"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ERR_VALIDATION", out["code"])

	rec, _ = a.do(t, http.MethodPost, path, a.token(t, "user-2"), `{"rationale":"mine now"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	a := newTestAPI(t, nil)

	rec, _ := a.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, out := a.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["checks"].(map[string]interface{})["store"])

	a.queue.err = errors.New("redis down")
	rec, out = a.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "redis down", out["checks"].(map[string]interface{})["queue"])
}
