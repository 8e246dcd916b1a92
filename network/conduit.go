// Package network defines the boundary to the wire transport. The quorum
// store only depends on the conduit interface; serialization and delivery
// are owned by the networking layer that implements it.
package network

import (
	"github.com/dapperlabs/quorumstore/model"
)

// Conduit represents the networking send interface for the quorum store
// channel. Implementations must be safe for concurrent use.
type Conduit interface {
	// Submit sends the event to the given recipients in a best-effort,
	// non-blocking manner. Delivery is not guaranteed; the request/retry
	// protocol on top compensates for losses.
	Submit(event interface{}, targetIDs ...model.Identifier) error

	// Publish broadcasts the event to all validators on the channel,
	// including the local node.
	Publish(event interface{}) error
}
