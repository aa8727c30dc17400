package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/personaforge/personaforge/pkg/api/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowGeneration waits for delay or the request deadline, like a chat
// handler blocked on the generation service.
func slowGeneration(delay time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(delay):
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"response":"Fly, you fools!"}`))
		case <-r.Context().Done():
		}
	})
}

func serveWithTimeout(timeout time.Duration, h http.Handler, requestID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/collections/me/personas/gandalf/chat", nil)
	if requestID != "" {
		req = req.WithContext(WithRequestID(req.Context(), requestID))
	}
	w := httptest.NewRecorder()
	Timeout(timeout)(h).ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) response.ErrorResponse {
	t.Helper()
	var body response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body should hold a single JSON document")
	return body
}

func TestTimeout_FastReplyPassesThrough(t *testing.T) {
	w := serveWithTimeout(time.Second, slowGeneration(5*time.Millisecond), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Fly, you fools!")
}

func TestTimeout_SilentHandlerGets504(t *testing.T) {
	w := serveWithTimeout(30*time.Millisecond, slowGeneration(time.Second), "turn-7")
	require.Equal(t, http.StatusGatewayTimeout, w.Code)

	body := decodeError(t, w)
	assert.Equal(t, response.ErrCodeGatewayTimeout, body.Error.Code)
	assert.Equal(t, "turn-7", body.Error.RequestID)
}

func TestTimeout_UnknownRequestID(t *testing.T) {
	w := serveWithTimeout(10*time.Millisecond, slowGeneration(time.Second), "")
	assert.Equal(t, "unknown", decodeError(t, w).Error.RequestID)
}

func TestTimeout_HandlerThatWroteKeepsItsResponse(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		response.HandleError(w, r.Context().Err(), GetRequestID(r.Context()))
	})
	w := serveWithTimeout(20*time.Millisecond, h, "")

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	decodeError(t, w)
}

func TestTimeout_ZeroDisables(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Context().Deadline()
		assert.False(t, ok, "expected no deadline")
		w.WriteHeader(http.StatusNoContent)
	})
	assert.Equal(t, http.StatusNoContent, serveWithTimeout(0, h, "").Code)
}
