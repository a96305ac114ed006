package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin policy is enforced by the CORS layer for the REST surface; the
	// websocket accepts any origin because the operator's device is the only
	// intended client.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and streams state views until the
// client goes away. The server clock stays authoritative; clients just render
// what they receive.
func (s *Service) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	updates, cancel := s.app.Subscribe()
	defer cancel()

	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("websocket client connected")

	// Reader goroutine: drain control frames and detect disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Initial state so the client renders immediately.
	if err := writeView(conn, s.app.State()); err != nil {
		_ = conn.Close()
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer conn.Close()

	for {
		select {
		case <-done:
			log.Info().Str("remote", conn.RemoteAddr().String()).Msg("websocket client disconnected")
			return
		case view, ok := <-updates:
			if !ok {
				return
			}
			if err := writeView(conn, view); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeView(conn *websocket.Conn, view any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(view)
}
