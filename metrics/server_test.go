package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer_CreatesServerWithAddress(t *testing.T) {
	server := NewServer(":19999")

	assert.NotNil(t, server)
	assert.Equal(t, ":19999", server.Addr())
	assert.Equal(t, 5*time.Second, server.server.ReadHeaderTimeout)
}

func TestHandler_ServesHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestHandler_ServesMetrics(t *testing.T) {
	NewCollector("handler-test").IncBatches()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `keypool_batches_total{provider="handler-test"}`)
}

func TestServer_StartAndShutdown(t *testing.T) {
	server := NewServer(":19998")

	server.Start()

	// Give the server a moment to start
	time.Sleep(100 * time.Millisecond)

	assert.NoError(t, server.Err())

	resp, err := http.Get("http://localhost:19998/metrics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = server.Shutdown(ctx)
	assert.NoError(t, err)

	// Verify server is no longer accepting connections
	time.Sleep(100 * time.Millisecond)
	_, err = http.Get("http://localhost:19998/metrics")
	assert.Error(t, err)
}

func TestServer_ErrReturnsStartupErrors(t *testing.T) {
	server1 := NewServer(":19994")
	server1.Start()

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server1.Shutdown(ctx)
	}()

	// Give it time to bind
	time.Sleep(100 * time.Millisecond)

	// Second server on the same port must fail to bind
	server2 := NewServer(":19994")
	server2.Start()

	time.Sleep(100 * time.Millisecond)

	assert.Error(t, server2.Err())
}
