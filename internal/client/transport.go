// Package client maintains a local, eventually-consistent mirror of the
// relay's survey collection. One Session implementation serves both the
// synchronized and the local-only mode; the difference is purely which
// Transport it is wired to.
package client

import (
	"errors"

	"github.com/fieldworkshq/surveysync/internal/relay"
)

// ConnState describes the transport link's lifecycle state.
type ConnState string

const (
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
	StateReconnecting ConnState = "reconnecting"
	StateFailed       ConnState = "failed"
)

// ErrNotConnected indicates a command was submitted with no live transport.
var ErrNotConnected = errors.New("client: not connected")

// Transport is one live link to a mutation source. Submit is
// fire-and-forget: the local cache updates only when the corresponding
// broadcast event arrives back on Events. The events channel closes when
// the link is lost.
type Transport interface {
	Submit(command relay.Command) error
	Events() <-chan relay.Event
	Close() error
}
