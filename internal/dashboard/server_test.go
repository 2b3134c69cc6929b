package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/checkpoint"
)

// memReader is a Reader whose checkpoint tests can change.
type memReader struct {
	mu  sync.Mutex
	cp  checkpoint.Checkpoint
	err error
}

func (m *memReader) Read() (checkpoint.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cp, m.err
}

func (m *memReader) set(cp checkpoint.Checkpoint, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cp, m.err = cp, err
}

func newTestServer(t *testing.T, r Reader) (*Server, *httptest.Server) {
	t.Helper()
	s := New(r, slog.New(slog.DiscardHandler), 10*time.Millisecond)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func getView(t *testing.T, url string) checkpoint.View {
	t.Helper()
	resp, err := http.Get(url + "/update_progress")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var v checkpoint.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestUpdateProgress(t *testing.T) {
	r := &memReader{}
	_, ts := newTestServer(t, r)

	t.Run("no progress file", func(t *testing.T) {
		r.set(checkpoint.Checkpoint{}, checkpoint.ErrNotFound)
		v := getView(t, ts.URL)
		assert.False(t, v.Available)
		assert.Equal(t, "Sin iniciar", v.CurrentStage)
		assert.Len(t, v.PendingStages, len(checkpoint.Steps()))
		assert.Zero(t, v.Percentage)
	})

	t.Run("corrupt progress file", func(t *testing.T) {
		r.set(checkpoint.Checkpoint{}, checkpoint.ErrInvalid)
		v := getView(t, ts.URL)
		assert.False(t, v.Available)
	})

	t.Run("training in progress", func(t *testing.T) {
		r.set(checkpoint.Checkpoint{
			Stage:        checkpoint.StageTraining,
			StageStatus:  checkpoint.StatusStarted,
			Substage:     checkpoint.SubstageGenerateTrFiles,
			Detail:       checkpoint.Counts(1, 3).With("current_file", "Ari_9/p0000"),
			ScriptStatus: checkpoint.ScriptActive,
		}, nil)
		v := getView(t, ts.URL)
		assert.True(t, v.Available)
		assert.Equal(t, checkpoint.StageTraining.Label(), v.CurrentStage)
		assert.Equal(t, checkpoint.SubstageGenerateTrFiles.Label(), v.Substage)
		assert.Equal(t, 33.33, v.Percentage)
		assert.Equal(t, "Ari_9/p0000", v.Details["current_file"])
		assert.Len(t, v.CompletedStages, 3)
	})
}

func TestIndexAndHealth(t *testing.T) {
	_, ts := newTestServer(t, &memReader{err: checkpoint.ErrNotFound})

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "/update_progress")

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok\n", string(body))

	resp, err = http.Get(ts.URL + "/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/update_progress", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWebsocketPushesChanges(t *testing.T) {
	r := &memReader{err: checkpoint.ErrNotFound}
	s, ts := newTestServer(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.watch(ctx)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() checkpoint.View {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var v checkpoint.View
		require.NoError(t, conn.ReadJSON(&v))
		return v
	}

	first := read()
	assert.Equal(t, "Sin iniciar", first.CurrentStage)

	r.set(checkpoint.Checkpoint{
		Stage:        checkpoint.StageInstallModel,
		StageStatus:  checkpoint.StatusFinished,
		Detail:       checkpoint.Counts(1, 1),
		ScriptStatus: checkpoint.ScriptActive,
	}, nil)

	// Skip any copy of the initial view still queued from the poller.
	var v checkpoint.View
	for range 5 {
		if v = read(); v.Available {
			break
		}
	}
	assert.Equal(t, checkpoint.StageInstallModel.Label(), v.CurrentStage)
	assert.Equal(t, 100.0, v.Percentage)
	assert.Empty(t, v.PendingStages)
}

func TestHubPublishOnlyOnChange(t *testing.T) {
	h := newHub()
	c := h.add()

	assert.True(t, h.publish([]byte("a")))
	assert.False(t, h.publish([]byte("a")))
	assert.True(t, h.publish([]byte("b")))

	// Only the newest unsent message is kept.
	assert.Equal(t, "b", string(<-c.send))
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected message %q", msg)
	default:
	}

	h.remove(c)
	assert.Zero(t, h.count())
}

func TestServeShutsDownOnCancel(t *testing.T) {
	store := checkpoint.NewStore(filepath.Join(t.TempDir(), "progress.json"))
	s := New(store, slog.New(slog.DiscardHandler), 10*time.Millisecond)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	v := getView(t, "http://"+ln.Addr().String())
	assert.Equal(t, "Sin iniciar", v.CurrentStage)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(slog.New(slog.DiscardHandler))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("boom"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
