package websocket

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, string, context.CancelFunc) {
	t.Helper()
	hub := NewHub(log.New(io.Discard, "", 0))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(HandleRunsWebSocket(hub))
	t.Cleanup(srv.Close)
	t.Cleanup(cancel)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http"), cancel
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPublishReachesClients(t *testing.T) {
	hub, url, _ := startHub(t)
	a := dial(t, url)
	b := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 5*time.Second, 10*time.Millisecond)

	event := RunEvent{RunID: "r1", Job: "nightly", Status: "succeeded", DeletedFiles: 3, DeletedBytes: 42}
	require.NoError(t, hub.Publish(event))

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var got RunEvent
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, event.RunID, got.RunID)
		assert.Equal(t, event.DeletedBytes, got.DeletedBytes)
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub, url, _ := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestPublishAfterStop(t *testing.T) {
	hub, url, cancel := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.Eventually(t, func() bool {
		return hub.Publish(RunEvent{Job: "late"}) == ErrHubClosed
	}, 5*time.Second, 10*time.Millisecond)

	// A publish racing the shutdown may still be delivered; the close follows it.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var err error
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		t.Fatal("client was not disconnected when the hub stopped")
	}
}
