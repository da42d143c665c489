package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fieldworkshq/surveysync/internal/relay"
	"github.com/fieldworkshq/surveysync/internal/store"
	"go.uber.org/zap"
)

// LocalConfig describes a local-only transport. A nil Backend keeps state
// in memory only.
type LocalConfig struct {
	Backend store.SnapshotStore
	Logger  *zap.Logger
}

// LocalTransport is the local-only mode: commands are applied to an
// embedded state store and echoed back as events, with no relay involved.
// It gives a single client the same event-driven cache discipline as the
// synchronized mode.
type LocalTransport struct {
	router *relay.Router
	events chan relay.Event
	cancel context.CancelFunc
}

// NewLocalTransport builds the embedded store, hub and router, and emits
// the initial snapshot as the first event.
func NewLocalTransport(cfg LocalConfig) (*LocalTransport, error) {
	backend := cfg.Backend
	if backend == nil {
		backend = store.NewMemoryStore()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	stateStore, err := store.New(store.Config{Backend: backend, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("client: build local store: %w", err)
	}
	stateStore.Load()

	router, err := relay.NewRouter(relay.RouterConfig{
		Store:  stateStore,
		Hub:    relay.NewHub(nil),
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("client: build local router: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	snapshot, stream, cleanup := router.Subscribe(ctx)

	transport := &LocalTransport{
		router: router,
		events: make(chan relay.Event, eventBuffer),
		cancel: cancel,
	}
	transport.events <- relay.InitialEvent(snapshot)

	go func() {
		defer cleanup()
		defer close(transport.events)
		for {
			select {
			case event := <-stream:
				select {
				case transport.events <- event:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return transport, nil
}

// Submit routes the command through the embedded mutation router.
func (t *LocalTransport) Submit(command relay.Command) error {
	raw, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("client: encode command: %w", err)
	}
	t.router.Dispatch(raw)
	return nil
}

// Events returns the local event stream.
func (t *LocalTransport) Events() <-chan relay.Event {
	return t.events
}

// Close stops the event pump.
func (t *LocalTransport) Close() error {
	t.cancel()
	return nil
}
