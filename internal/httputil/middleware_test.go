package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formcheck/formcheck/internal/monitoring"
)

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	monitoring.SetOutput(&buf)
	defer monitoring.SetOutput(os.Stderr)
	monitoring.Configure(true, true)
	defer monitoring.Configure(false, false)

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSONError(w, http.StatusTeapot, "short and stout")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary?x=1", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.JSONEq(t, `{"error":"short and stout"}`, rec.Body.String())
	require.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/api/summary?x=1"`)
}

func TestLoggingMiddleware_HijackUnsupported(t *testing.T) {
	lrw := &loggingResponseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	_, _, err := lrw.Hijack()
	assert.Error(t, err)
}
