package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/fieldworkshq/surveysync/internal/relay"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const eventBuffer = 32

// WSTransport is the synchronized-mode transport: a WebSocket link to the
// relay. The first event on Events is always the relay's initial snapshot.
type WSTransport struct {
	conn   *websocket.Conn
	events chan relay.Event
	logger *zap.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// DialWebSocket connects to the relay's /ws endpoint and starts the read
// loop.
func DialWebSocket(ctx context.Context, url string, logger *zap.Logger) (*WSTransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	transport := &WSTransport{
		conn:   conn,
		events: make(chan relay.Event, eventBuffer),
		logger: logger,
	}
	go transport.readLoop()
	return transport, nil
}

// Submit sends one command to the relay. The change is not applied locally;
// it takes effect when the broadcast event comes back.
func (t *WSTransport) Submit(command relay.Command) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(command)
}

// Events returns the inbound event stream. The channel closes when the
// connection is lost.
func (t *WSTransport) Events() <-chan relay.Event {
	return t.events
}

// Close tears the connection down.
func (t *WSTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close()
	})
	return err
}

func (t *WSTransport) readLoop() {
	defer close(t.events)
	for {
		_, raw, err := t.conn.ReadMessage()
		if err != nil {
			return
		}
		var event relay.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			t.logger.Warn("malformed event dropped", zap.Error(err))
			continue
		}
		t.events <- event
	}
}
