package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fitbod/fitstress/internal/auth"
	"github.com/fitbod/fitstress/internal/workout"
)

// recorderSink captures observations for assertions.
type recorderSink struct {
	mu  sync.Mutex
	obs []struct {
		endpoint string
		status   int
	}
}

func (r *recorderSink) ObserveRequest(endpoint string, status int, latency time.Duration, ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, struct {
		endpoint string
		status   int
	}{endpoint, status})
}

func TestClient_Send_Success(t *testing.T) {
	priv, pub, err := auth.GenerateKeypair()
	require.NoError(t, err)

	var gotBody []byte
	router := chi.NewRouter()
	router.Post(workout.ListPath, func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)

		ts, err := strconv.ParseInt(r.Header.Get(auth.TimestampHeader), 10, 64)
		require.NoError(t, err)
		sig, err := auth.DecodeSignature(r.Header.Get(auth.SignatureHeader))
		require.NoError(t, err)
		assert.True(t, auth.Verify(ts, gotBody, sig, pub), "signature must verify")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"items":[]}`))
	})

	srv := httptest.NewServer(router)
	defer srv.Close()

	sink := &recorderSink{}
	client := NewClient(srv.Listener.Addr().String(), zaptest.NewLogger(t), sink)

	body, err := client.Send(context.Background(), workout.ListPath, priv, []byte(`{"user_id":"x"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[]}`, string(body))
	assert.Equal(t, `{"user_id":"x"}`, string(gotBody))

	require.Len(t, sink.obs, 1)
	assert.Equal(t, workout.ListPath, sink.obs[0].endpoint)
	assert.Equal(t, 200, sink.obs[0].status)
}

func TestClient_Send_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := &recorderSink{}
	client := NewClient(srv.Listener.Addr().String(), zaptest.NewLogger(t), sink)

	_, err := client.Send(context.Background(), workout.NewPath, testKey(t), []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")

	// The measurement is still recorded before the status check fails.
	require.Len(t, sink.obs, 1)
	assert.Equal(t, 500, sink.obs[0].status)
}

func TestClient_Send_ConnectionRefused(t *testing.T) {
	// Reserve a port and close it so nothing is listening.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	client := NewClient(addr, zaptest.NewLogger(t), &recorderSink{})
	_, err = client.Send(context.Background(), workout.ListPath, testKey(t), []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect")
}

func TestClient_Send_FreshConnectionPerCall(t *testing.T) {
	var mu sync.Mutex
	conns := 0

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns++
			mu.Unlock()
			go func(c net.Conn) {
				defer func() { _ = c.Close() }()
				// Swallow the request, answer, close. Connection: close
				// semantics mean one request per conn.
				buf := make([]byte, 4096)
				_, _ = c.Read(buf)
				_, _ = c.Write([]byte("HTTP/1.1 204 No Content\r\nContent-Length: 0\r\n\r\n"))
			}(conn)
		}
	}()

	client := NewClient(l.Addr().String(), zaptest.NewLogger(t), &recorderSink{})
	for i := 0; i < 3; i++ {
		_, err := client.Send(context.Background(), workout.NewPath, testKey(t), []byte(`{}`))
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, conns)
}

func TestClient_Send_TruncatedResponse(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 4096)
		_, _ = conn.Read(buf)
		_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\nshort"))
		_ = conn.Close()
	}()

	client := NewClient(l.Addr().String(), zaptest.NewLogger(t), &recorderSink{})
	_, err = client.Send(context.Background(), workout.ListPath, testKey(t), []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mid-body")
}

func testKey(t *testing.T) auth.PrivateKey {
	t.Helper()
	priv, _, err := auth.GenerateKeypair()
	require.NoError(t, err)
	return priv
}
