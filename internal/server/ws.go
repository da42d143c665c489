package server

import (
	"net/http"

	"github.com/fieldworkshq/surveysync/internal/relay"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// The relay serves browser clients from arbitrary origins, mirroring its
// wide-open CORS policy.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWebSocket runs one client session: upgrade, snapshot handshake,
// then a read loop feeding the mutation router while a writer goroutine
// drains the session's broadcast stream. The snapshot and the hub
// registration are taken atomically, so the stream carries exactly the
// events newer than the snapshot.
func (h *httpHandler) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.SessionOpened()
	defer h.metrics.SessionClosed()

	remote := c.Request.RemoteAddr
	h.logger.Info("client connected", zap.String("remote", remote))
	defer h.logger.Info("client disconnected", zap.String("remote", remote))

	snapshot, stream, cleanup := h.relayRouter.Subscribe(c.Request.Context())
	defer cleanup()

	if err := conn.WriteJSON(relay.InitialEvent(snapshot)); err != nil {
		h.logger.Warn("initial snapshot send failed", zap.String("remote", remote), zap.Error(err))
		return
	}

	done := make(chan struct{})
	writerStopped := make(chan struct{})
	go func() {
		defer close(writerStopped)
		for {
			select {
			case event := <-stream:
				if err := conn.WriteJSON(event); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read failed", zap.String("remote", remote), zap.Error(err))
			}
			break
		}
		h.relayRouter.Dispatch(raw)
	}

	close(done)
	conn.Close()
	<-writerStopped
}
