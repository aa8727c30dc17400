package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/personaforge/personaforge/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	mu       sync.Mutex
	calls    int
	failures int
}

func (f *fakeRecorder) RecordGeneration(_ time.Duration, success bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if !success {
		f.failures++
	}
}

func newServer(t *testing.T, status int, body string) (*httptest.Server, *request) {
	t.Helper()
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestHTTPClient_Generate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"response field", `{"response":"I am Frodo."}`, "I am Frodo."},
		{"text field", `{"text":"Hello there."}`, "Hello there."},
		{"output field", `{"output":"Well met."}`, "Well met."},
		{"response wins over text", `{"text":"b","response":"a"}`, "a"},
		{"no known field", `{"foo":"bar"}`, `{"foo":"bar"}`},
		{"json string", `"plain reply"`, "plain reply"},
		{"non string field", `{"response":42}`, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, got := newServer(t, http.StatusOK, tt.body)
			c, err := NewHTTPClient(Config{Endpoint: srv.URL})
			require.NoError(t, err)

			reply, err := c.Generate(context.Background(), "You are Frodo")
			require.NoError(t, err)
			assert.Equal(t, tt.want, reply)
			assert.Equal(t, "You are Frodo", got.Prompt)
			assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
			assert.InDelta(t, DefaultTemperature, got.Temperature, 1e-9)
		})
	}
}

func TestHTTPClient_NonOKStatus(t *testing.T) {
	srv, _ := newServer(t, http.StatusServiceUnavailable, "model loading")
	rec := &fakeRecorder{}
	c, err := NewHTTPClient(Config{Endpoint: srv.URL, MaxTokens: 50, Temperature: 0.2}, WithMetrics(rec))
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, errs.ErrUpstreamUnavailable)
	assert.ErrorContains(t, err, "503")
	assert.ErrorContains(t, err, "model loading")
	assert.Equal(t, 1, rec.failures)
}

func TestHTTPClient_InvalidJSON(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, "not json")
	c, err := NewHTTPClient(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, errs.ErrUpstreamUnavailable)
}

func TestHTTPClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c, err := NewHTTPClient(Config{Endpoint: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, errs.ErrUpstreamUnavailable)
}

func TestHTTPClient_Unreachable(t *testing.T) {
	c, err := NewHTTPClient(Config{Endpoint: "http://127.0.0.1:1/generate", Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, errs.ErrUpstreamUnavailable)
}

func TestHTTPClient_RateLimitHonoursContext(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"response":"ok"}`)
	c, err := NewHTTPClient(Config{Endpoint: srv.URL, RateLimit: 0.001, Burst: 1})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Generate(ctx, "second")
	assert.ErrorIs(t, err, errs.ErrUpstreamUnavailable)
}

func TestNewHTTPClient_RequiresEndpoint(t *testing.T) {
	_, err := NewHTTPClient(Config{})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{
			name:  "untouched",
			reply: "The road goes ever on and on.",
			want:  "The road goes ever on and on.",
		},
		{
			name:  "leading speaker label",
			reply: "Frodo: I will take the ring.",
			want:  "I will take the ring.",
		},
		{
			name:  "invented continuation cut",
			reply: "I will take the ring.\nUser: Are you sure?\nFrodo: Yes.",
			want:  "I will take the ring.",
		},
		{
			name:  "prompt echo removed",
			reply: "Background information: Shire\nI miss the Shire terribly.",
			want:  "I miss the Shire terribly.",
		},
		{
			name:  "too short keeps original",
			reply: "Yes.\nUser: really?",
			want:  "Yes.\nUser: really?",
		},
		{name: "empty", reply: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanResponse(tt.reply, "Frodo"))
		})
	}
}
