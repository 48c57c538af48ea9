package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/fit-portal/placement/pkg/composables"
	"github.com/fit-portal/placement/pkg/httpapi"
)

func newRouter(mw ...mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	r.Use(mw...)
	return r
}

func TestWithLogger_BindsRequestIDAndLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	r := newRouter(WithLogger(logger, DefaultLoggerOptions()))
	r.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "req-42", composables.UseRequestID(r.Context()))
		require.NotNil(t, composables.UseLogger(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))

	last := hook.LastEntry()
	require.NotNil(t, last)
	require.Equal(t, "request completed", last.Message)
	require.Equal(t, http.StatusNoContent, last.Data["status-code"])
}

func TestWithLogger_RecoversPanic(t *testing.T) {
	logger, hook := test.NewNullLogger()

	r := newRouter(WithLogger(logger, DefaultLoggerOptions()))
	r.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var env httpapi.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "INTERNAL_SERVER_ERROR", env.Code)
	require.NotEmpty(t, env.RequestID)

	var sawPanic bool
	for _, e := range hook.AllEntries() {
		if e.Message == "panic recovered in request handler" {
			sawPanic = true
		}
	}
	require.True(t, sawPanic)
}

func TestWithActor(t *testing.T) {
	actorID := uuid.New()

	r := newRouter(WithActor("X-Actor-ID"))
	r.HandleFunc("/who", func(w http.ResponseWriter, r *http.Request) {
		got, err := composables.UseActor(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(got.String()))
	})

	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set("X-Actor-ID", actorID.String())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, actorID.String(), rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set("X-Actor-ID", "not-a-uuid")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	r := newRouter(RateLimit(RateLimitConfig{RequestsPerPeriod: 2, Store: NewMemoryStore()}))
	r.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimit_DisabledWhenZero(t *testing.T) {
	called := false
	h := RateLimit(RateLimitConfig{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, called)
}
