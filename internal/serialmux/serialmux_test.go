package serialmux

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortWritePort reports fewer bytes written than requested.
type shortWritePort struct{ *MemPort }

func (p shortWritePort) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	return len(b) - 1, nil
}

// feedUntil keeps adding line to port until done is closed or the deadline
// passes. Monitor only delivers to subscribers that are already receiving.
func feedUntil(t *testing.T, port *MemPort, line string, done <-chan struct{}) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		port.Feed([]byte(line))
		select {
		case <-done:
			return
		case <-deadline:
			t.Error("timed out waiting for line delivery")
			return
		case <-ticker.C:
		}
	}
}

func TestSendCommand_AppendsNewline(t *testing.T) {
	port := NewMemPort()
	mux := NewSerialMux(port)

	require.NoError(t, mux.SendCommand("b"))
	require.NoError(t, mux.SendCommand("90\n"))

	assert.Equal(t, "b\n90\n", string(port.Written()))
}

func TestSendRaw_WritesBytesUnchanged(t *testing.T) {
	port := NewMemPort()
	mux := NewSerialMux(port)

	require.NoError(t, mux.SendRaw([]byte("m")))
	require.NoError(t, mux.SendRaw([]byte("b")))
	require.NoError(t, mux.SendRaw([]byte("45\n")))

	assert.Equal(t, "mb45\n", string(port.Written()))
	assert.Equal(t, 3, port.Writes)
}

func TestSendRaw_Errors(t *testing.T) {
	t.Run("write error", func(t *testing.T) {
		port := NewMemPort()
		port.WriteError = errors.New("device unplugged")
		mux := NewSerialMux(port)

		err := mux.SendRaw([]byte("h"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "device unplugged")
	})

	t.Run("short write", func(t *testing.T) {
		mux := NewSerialMux(shortWritePort{NewMemPort()})
		assert.ErrorIs(t, mux.SendRaw([]byte("x")), ErrWriteFailed)
	})

	t.Run("after close", func(t *testing.T) {
		port := NewMemPort()
		mux := NewSerialMux(port)
		require.NoError(t, mux.Close())
		assert.ErrorIs(t, mux.SendRaw([]byte("m")), ErrClosed)
		assert.Equal(t, 0, port.Writes)
	})
}

func TestSendRaw_ConcurrentWritesDoNotInterleave(t *testing.T) {
	port := NewMemPort()
	mux := NewSerialMux(port)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mux.SendRaw([]byte("b90\n"))
		}()
	}
	wg.Wait()

	written := string(port.Written())
	assert.Equal(t, strings.Repeat("b90\n", 20), written)
}

func TestSubscribeUnsubscribe(t *testing.T) {
	mux := NewSerialMux(NewMemPort())

	id, ch := mux.Subscribe()
	require.NotEmpty(t, id)
	assert.Len(t, mux.subscribers, 1)

	mux.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after Unsubscribe")
	assert.Empty(t, mux.subscribers)

	// unknown id is a no-op
	mux.Unsubscribe("missing")
}

func TestClose_ClosesSubscribersAndPort(t *testing.T) {
	port := NewMemPort()
	mux := NewSerialMux(port)
	_, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()

	require.NoError(t, mux.Close())

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	assert.False(t, ok1)
	assert.False(t, ok2)
	assert.True(t, port.Closed)

	// second close is a no-op
	assert.NoError(t, mux.Close())
}

func TestMonitor_DeliversLines(t *testing.T) {
	port := NewMemPort()
	port.BlockReads = true
	mux := NewSerialMux(port)
	t.Cleanup(func() { mux.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, ch := mux.Subscribe()
	monitorErr := make(chan error, 1)
	go func() { monitorErr <- mux.Monitor(ctx) }()

	got := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		got <- <-ch
	}()
	feedUntil(t, port, "ready\n", done)

	assert.Equal(t, "ready", <-got)

	cancel()
	select {
	case err := <-monitorErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
}

func TestMonitor_ReturnsNilAtEOF(t *testing.T) {
	port := NewMemPort()
	port.Feed([]byte("one\ntwo\n"))
	mux := NewSerialMux(port)

	assert.NoError(t, mux.Monitor(context.Background()))
}

func TestMonitor_ReturnsReadError(t *testing.T) {
	port := NewMemPort()
	port.ReadError = errors.New("framing error")
	mux := NewSerialMux(port)

	err := mux.Monitor(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "framing error")
}

func TestSendCommandHandler(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		command    string
		writeErr   error
		wantStatus int
		wantWrite  string
	}{
		{"posts command", http.MethodPost, "h", nil, http.StatusOK, "h\n"},
		{"wrong method", http.MethodGet, "h", nil, http.StatusMethodNotAllowed, ""},
		{"missing command", http.MethodPost, "  ", nil, http.StatusBadRequest, ""},
		{"write failure", http.MethodPost, "h", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := NewMemPort()
			port.WriteError = tt.writeErr
			mux := NewSerialMux(port)

			form := url.Values{"command": {tt.command}}
			req := httptest.NewRequest(tt.method, "/debug/send-command-api", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()

			sendCommandHandler(mux).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantWrite, string(port.Written()))
		})
	}
}

func TestTailHandler_StreamsLines(t *testing.T) {
	port := NewMemPort()
	port.BlockReads = true
	mux := NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	srv := httptest.NewServer(tailHandler(mux))
	defer srv.Close()
	defer mux.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	ping, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": ping\n", ping)

	got := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "data: ") {
				got <- strings.TrimSpace(line)
				return
			}
		}
	}()
	feedUntil(t, port, "servo ok\n", done)

	select {
	case line := <-got:
		assert.Equal(t, "data: servo ok", line)
	default:
		t.Fatal("no data event received")
	}
}

func TestTailHandler_RejectsPost(t *testing.T) {
	mux := NewSerialMux(NewMemPort())
	rec := httptest.NewRecorder()
	tailHandler(mux).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debug/tail", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
