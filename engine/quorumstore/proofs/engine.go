package proofs

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dapperlabs/quorumstore/engine/common/fifoqueue"
	"github.com/dapperlabs/quorumstore/model"
	"github.com/dapperlabs/quorumstore/model/messages"
	"github.com/dapperlabs/quorumstore/module"
	"github.com/dapperlabs/quorumstore/module/component"
	"github.com/dapperlabs/quorumstore/module/irrecoverable"
	"github.com/dapperlabs/quorumstore/network"
)

// defaultAckQueueCapacity bounds the inbound acknowledgement queue.
const defaultAckQueueCapacity = 10_000

type inboundAck struct {
	signed *model.SignedBatchInfo
}

type commitNotification struct {
	infos []model.BatchInfo
}

// Engine wraps the proof coordinator core as an actor: it queues inbound
// acknowledgements and commit notifications, drives the periodic timeout
// sweep, and broadcasts completed proofs. Completed proofs are also
// delivered on the Proofs channel for the local consensus collaborator.
type Engine struct {
	log      zerolog.Logger
	core     *Core
	con      network.Conduit
	inbound  *fifoqueue.FifoQueue
	notifier module.Notifier
	tick     time.Duration
	proofs   chan *model.ProofOfStore

	cm *component.ComponentManager
	component.Component
}

func NewEngine(
	log zerolog.Logger,
	core *Core,
	con network.Conduit,
	tick time.Duration,
) (*Engine, error) {

	inbound, err := fifoqueue.NewFifoQueue(
		fifoqueue.WithCapacity(defaultAckQueueCapacity),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create acknowledgement queue: %w", err)
	}

	e := &Engine{
		log:      log.With().Str("engine", "proof_coordinator").Logger(),
		core:     core,
		con:      con,
		inbound:  inbound,
		notifier: module.NewNotifier(),
		tick:     tick,
		proofs:   make(chan *model.ProofOfStore, defaultAckQueueCapacity),
	}

	e.cm = component.NewComponentManagerBuilder().
		AddWorker(e.processLoop).
		Build()
	e.Component = e.cm

	return e, nil
}

// Proofs returns the channel on which completed proofs of store are
// delivered to the local consensus collaborator.
func (e *Engine) Proofs() <-chan *model.ProofOfStore {
	return e.proofs
}

// OnSignedBatchInfo queues an acknowledgement received from the network.
func (e *Engine) OnSignedBatchInfo(msg *messages.SignedBatchInfoMessage) {
	if e.inbound.Push(inboundAck{signed: msg.Signed}) {
		e.notifier.Notify()
		return
	}
	e.log.Warn().Msg("acknowledgement queue full, dropping signed batch info")
}

// OnCommit queues a commit notification from consensus.
func (e *Engine) OnCommit(infos []model.BatchInfo) {
	if e.inbound.Push(commitNotification{infos: infos}) {
		e.notifier.Notify()
		return
	}
	e.log.Warn().Msg("acknowledgement queue full, dropping commit notification")
}

func (e *Engine) processLoop(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	ready()

	doneSignal := ctx.Done()
	newMessageSignal := e.notifier.Channel()
	for {
		select {
		case <-doneSignal:
			return
		case <-ticker.C:
			e.core.HandleTimeouts()
			continue
		default:
		}

		select {
		case <-doneSignal:
			return
		case <-ticker.C:
			e.core.HandleTimeouts()
		case <-newMessageSignal:
			e.processQueuedMessages()
		}
	}
}

func (e *Engine) processQueuedMessages() {
	for {
		msg, ok := e.inbound.Pop()
		if !ok {
			return
		}

		switch m := msg.(type) {
		case inboundAck:
			e.onAck(m.signed)
		case commitNotification:
			e.core.NotifyCommit(m.infos)
		default:
			// inbound is only fed by this engine's own methods
			e.log.Error().Msgf("invalid message type (%T)", msg)
		}
	}
}

// onAck feeds one acknowledgement to the core. Validation failures are
// per-message events: they are logged and dropped without affecting
// subsequent messages.
func (e *Engine) onAck(signed *model.SignedBatchInfo) {
	proof, err := e.core.AddSignature(signed)
	if err != nil {
		if isValidationError(err) {
			e.log.Debug().
				Err(err).
				Hex("signer", signed.Signer[:]).
				Hex("digest", signed.Info.Digest[:]).
				Msg("dropping invalid acknowledgement")
			return
		}
		e.log.Warn().Err(err).Hex("digest", signed.Info.Digest[:]).Msg("could not process acknowledgement")
		return
	}
	if proof == nil {
		return
	}

	// hand the proof to local consensus and broadcast it to peers
	e.proofs <- proof
	err = e.con.Publish(&messages.ProofOfStoreMessage{Proof: proof})
	if err != nil {
		e.log.Warn().Err(err).Hex("digest", proof.Info.Digest[:]).Msg("could not broadcast proof of store")
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, ErrWrongAuthor) ||
		errors.Is(err, ErrBatchNotFound) ||
		errors.Is(err, ErrUnknownSigner) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrNoTimestamp) ||
		IsInfoMismatchError(err)
}
