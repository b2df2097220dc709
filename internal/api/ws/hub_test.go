package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/recall/internal/models"
	"github.com/your-org/recall/pkg/dto"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub()
	go h.Run(ctx)

	r := gin.New()
	r.GET("/ws", h.HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) dto.WSEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt dto.WSEvent
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

func TestHubFiltersByJob(t *testing.T) {
	h, url := startHub(t)
	all := dial(t, url)
	one := dial(t, url+"?job_id=j2")
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	h.BroadcastResult(models.JobResult{JobID: "j1", Status: models.JobStatusDone, Result: &models.ProcessResult{Name: "Peter"}})
	h.BroadcastResult(models.JobResult{JobID: "j2", Status: models.JobStatusFailed, Error: "no face"})

	evt := readEvent(t, all)
	assert.Equal(t, "j1", evt.JobID)
	assert.Equal(t, "job_done", evt.Type)
	assert.Equal(t, "j2", readEvent(t, all).JobID)

	evt = readEvent(t, one)
	assert.Equal(t, "j2", evt.JobID)
	assert.Equal(t, "job_failed", evt.Type)
	assert.Equal(t, "no face", evt.Error)
}

func TestHubForgetsClosedClients(t *testing.T) {
	h, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
