package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibotaj/tracehub/internal/models"
)

func dialTestHub(t *testing.T, hub *Hub, userID, orgID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, userID, orgID)
	}))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readNotification(t *testing.T, conn *websocket.Conn) *models.Notification {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg struct {
		Type string              `json:"type"`
		Data models.Notification `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "notification", msg.Type)
	return &msg.Data
}

func TestPushReachesOrgClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	conn := dialTestHub(t, hub, "user-1", "org-a")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	hub.Push(&models.Notification{
		ID:             "n-1",
		OrganizationID: "org-a",
		Type:           models.NotifyShipmentArrived,
		Title:          "Arrived",
	})
	got := readNotification(t, conn)
	assert.Equal(t, "n-1", got.ID)
	assert.Equal(t, "Arrived", got.Title)
}

func TestPushIsTenantScoped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	connA := dialTestHub(t, hub, "user-1", "org-a")
	connB := dialTestHub(t, hub, "user-2", "org-b")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	hub.Push(&models.Notification{
		ID:             "n-1",
		OrganizationID: "org-a",
		Type:           models.NotifyTrackingError,
		Title:          "Tracking failed",
	})

	got := readNotification(t, connA)
	assert.Equal(t, "n-1", got.ID)

	connB.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := connB.ReadMessage()
	assert.Error(t, err, "other tenant's client must not receive the push")
}

func TestPushTargetsSingleUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	conn1 := dialTestHub(t, hub, "user-1", "org-a")
	conn2 := dialTestHub(t, hub, "user-2", "org-a")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	hub.Push(&models.Notification{
		ID:             "n-1",
		OrganizationID: "org-a",
		UserID:         "user-2",
		Type:           models.NotifyInvitation,
		Title:          "You were invited",
	})

	got := readNotification(t, conn2)
	assert.Equal(t, "n-1", got.ID)

	conn1.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := conn1.ReadMessage()
	assert.Error(t, err, "untargeted user must not receive the push")
}
