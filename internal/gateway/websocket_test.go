package gateway

import (
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/mcall12/xctimer/internal/race"
)

func TestWebSocketPushesInitialAndUpdatedState(t *testing.T) {
	srv, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Initial state arrives without any mutation.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var initial race.StateView
	require.NoError(t, conn.ReadJSON(&initial))
	require.Empty(t, initial.Runners)
	require.False(t, initial.Timer.Running)

	// A mutation is pushed to the connected client.
	postJSON(t, srv.URL+"/api/runners", map[string]string{"name": "Jane Smith"}).Body.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var updated race.StateView
	require.NoError(t, conn.ReadJSON(&updated))
	require.Len(t, updated.Runners, 1)
	require.Equal(t, "Jane Smith", updated.Runners[0].Name)
}
