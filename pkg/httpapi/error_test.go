package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteErrorWithRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteErrorWithRequestID(rec, http.StatusConflict, "INTERNSHIP_PERIOD_CLOSED", "period is closed", "req-1", nil))

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "INTERNSHIP_PERIOD_CLOSED", env.Code)
	require.Equal(t, "req-1", env.RequestID)
	require.Empty(t, env.Meta)
}

func TestNotFoundHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFoundHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "/missing", env.Meta["path"])
}
