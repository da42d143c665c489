package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fieldworkshq/surveysync/internal/relay"
	"go.uber.org/zap"
)

const (
	defaultBaseDelay   = 2 * time.Second
	defaultMaxAttempts = 5
)

// ErrReconnectFailed is returned once the retry budget is exhausted. The
// controller is then in the terminal Failed state and will not retry on
// its own.
var ErrReconnectFailed = errors.New("client: reconnect attempts exhausted")

var errMissingDial = errors.New("client: dial function is required")

// DialFunc establishes one transport link.
type DialFunc func(ctx context.Context) (Transport, error)

// ReconnectorConfig describes the reconnection controller's dependencies.
// Sleep is injectable so tests can observe the backoff schedule without
// waiting it out.
type ReconnectorConfig struct {
	Dial          DialFunc
	BaseDelay     time.Duration
	MaxAttempts   int
	Logger        *zap.Logger
	Sleep         func(ctx context.Context, delay time.Duration) error
	OnStateChange func(state ConnState)
}

// Reconnector keeps a session connected: it dials, pumps events into the
// session, and on transport loss retries with a linearly growing delay of
// attempt × BaseDelay. A successful handshake resets the attempt counter;
// the relay's fresh initial snapshot heals any events missed while
// disconnected. After MaxAttempts consecutive failures the controller
// parks in Failed.
type Reconnector struct {
	dial          DialFunc
	baseDelay     time.Duration
	maxAttempts   int
	logger        *zap.Logger
	sleep         func(ctx context.Context, delay time.Duration) error
	onStateChange func(state ConnState)

	mu        sync.Mutex
	state     ConnState
	transport Transport
}

// NewReconnector constructs a reconnection controller.
func NewReconnector(cfg ReconnectorConfig) (*Reconnector, error) {
	if cfg.Dial == nil {
		return nil, errMissingDial
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}
	return &Reconnector{
		dial:          cfg.Dial,
		baseDelay:     baseDelay,
		maxAttempts:   maxAttempts,
		logger:        logger,
		sleep:         sleep,
		onStateChange: cfg.OnStateChange,
		state:         StateDisconnected,
	}, nil
}

// State reports the controller's current connection state.
func (r *Reconnector) State() ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Submit forwards a command over the current transport. Fire-and-forget:
// a command in flight when the connection drops is simply lost, and the
// caller resubmits after reconnecting if it still wants the change.
func (r *Reconnector) Submit(command relay.Command) error {
	r.mu.Lock()
	transport := r.transport
	r.mu.Unlock()
	if transport == nil {
		return ErrNotConnected
	}
	return transport.Submit(command)
}

// Run drives the connect/consume/retry loop until ctx ends, the retry
// budget is exhausted (ErrReconnectFailed), or the context is cancelled.
// Events are folded into the session as they arrive.
func (r *Reconnector) Run(ctx context.Context, session *Session) error {
	attempt := 0
	for {
		transport, err := r.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("connection attempt failed", zap.Error(err))
			if backoffErr := r.backoff(ctx, &attempt); backoffErr != nil {
				return backoffErr
			}
			continue
		}

		attempt = 0
		r.setTransport(transport)
		r.setState(StateConnected)
		r.logger.Info("connected")

		session.Run(transport.Events(), ctx.Done())
		transport.Close()
		r.setTransport(nil)

		if ctx.Err() != nil {
			r.setState(StateDisconnected)
			return ctx.Err()
		}

		r.setState(StateDisconnected)
		r.logger.Warn("connection lost")
		if backoffErr := r.backoff(ctx, &attempt); backoffErr != nil {
			return backoffErr
		}
	}
}

// backoff advances the attempt counter and waits attempt × baseDelay.
// It moves the controller to Failed once the counter passes maxAttempts.
func (r *Reconnector) backoff(ctx context.Context, attempt *int) error {
	*attempt++
	if *attempt > r.maxAttempts {
		r.setState(StateFailed)
		r.logger.Error("reconnect attempts exhausted", zap.Int("attempts", r.maxAttempts))
		return ErrReconnectFailed
	}
	r.setState(StateReconnecting)
	delay := time.Duration(*attempt) * r.baseDelay
	r.logger.Info("scheduling reconnect",
		zap.Int("attempt", *attempt),
		zap.Duration("delay", delay))
	return r.sleep(ctx, delay)
}

func (r *Reconnector) setState(state ConnState) {
	r.mu.Lock()
	changed := r.state != state
	r.state = state
	callback := r.onStateChange
	r.mu.Unlock()
	if changed && callback != nil {
		callback(state)
	}
}

func (r *Reconnector) setTransport(transport Transport) {
	r.mu.Lock()
	r.transport = transport
	r.mu.Unlock()
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
