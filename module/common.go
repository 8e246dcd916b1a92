package module

import (
	"errors"

	"github.com/onflow/crypto"
	"github.com/onflow/crypto/hash"

	"github.com/dapperlabs/quorumstore/model"
)

// ErrMultipleStartup is returned when a component is started more than once.
var ErrMultipleStartup = errors.New("component may only be started once")

// ReadyDoneAware provides an easy interface to wait for module startup and
// shutdown. Modules that implement this interface only support a single
// start/stop cycle; Ready and Done may be called at any time after Start.
type ReadyDoneAware interface {
	// Ready commences startup of the module and returns a channel that is
	// closed once startup has completed.
	Ready() <-chan struct{}

	// Done commences shutdown of the module and returns a channel that is
	// closed once shutdown has completed.
	Done() <-chan struct{}
}

// Local encapsulates the node's own identity and its staking key, used to
// produce batch acknowledgements.
type Local interface {
	// NodeID returns the node ID of the local node.
	NodeID() model.Identifier

	// Sign signs the message with the local staking key, using the given
	// hasher for domain separation.
	Sign(msg []byte, hasher hash.Hasher) (crypto.Signature, error)
}
