// Package reader implements the batch reader: the actor that unifies local
// and remote batch-payload retrieval behind one asynchronous interface and
// drives the periodic maintenance of the batch store and the requester.
package reader

import (
	"errors"
	"fmt"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/rs/zerolog"

	"github.com/dapperlabs/quorumstore/engine/common/fifoqueue"
	"github.com/dapperlabs/quorumstore/engine/quorumstore/batchstore"
	"github.com/dapperlabs/quorumstore/engine/quorumstore/requester"
	"github.com/dapperlabs/quorumstore/model"
	"github.com/dapperlabs/quorumstore/model/messages"
	"github.com/dapperlabs/quorumstore/module"
	"github.com/dapperlabs/quorumstore/module/component"
	"github.com/dapperlabs/quorumstore/module/irrecoverable"
	"github.com/dapperlabs/quorumstore/network"
	"github.com/dapperlabs/quorumstore/storage"
)

// defaultCommandQueueCapacity bounds the inbound command queue; commands
// arriving beyond it are dropped and reported to the caller.
const defaultCommandQueueCapacity = 10_000

// inbound commands consumed by the processing loop
type getBatchForPeer struct {
	originID model.Identifier
	digest   model.Identifier
}

type getBatchForSelf struct {
	digest  model.Identifier
	signers []model.Identifier
	output  chan<- requester.Response
}

type batchResponse struct {
	originID model.Identifier
	digest   model.Identifier
	payload  model.Payload
}

type certifiedRoundUpdate struct {
	certified model.CertifiedRound
}

// Engine is the batch reader actor. Local lookups are answered
// synchronously from the batch store; misses are delegated to the
// requester, whose retries are driven by the engine's timer. Peer requests
// are served on a bounded worker pool so a slow persistence read cannot
// stall the event loop.
type Engine struct {
	log      zerolog.Logger
	metrics  module.QuorumStoreMetrics
	store    *batchstore.BatchStore
	req      *requester.Requester
	con      network.Conduit
	commands *fifoqueue.FifoQueue
	notifier module.Notifier
	pool     *workerpool.WorkerPool
	tick     time.Duration

	cm *component.ComponentManager
	component.Component
}

func New(
	log zerolog.Logger,
	metrics module.QuorumStoreMetrics,
	store *batchstore.BatchStore,
	req *requester.Requester,
	con network.Conduit,
	numWorkers int,
	tick time.Duration,
) (*Engine, error) {

	commands, err := fifoqueue.NewFifoQueue(
		fifoqueue.WithCapacity(defaultCommandQueueCapacity),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create command queue: %w", err)
	}

	e := &Engine{
		log:      log.With().Str("engine", "batch_reader").Logger(),
		metrics:  metrics,
		store:    store,
		req:      req,
		con:      con,
		commands: commands,
		notifier: module.NewNotifier(),
		pool:     workerpool.New(numWorkers),
		tick:     tick,
	}

	e.cm = component.NewComponentManagerBuilder().
		AddWorker(e.processLoop).
		Build()
	e.Component = e.cm

	return e, nil
}

// GetBatch resolves the payload of the batch certified by the given proof.
// The returned channel receives exactly one response: the payload on
// success, or a terminal error once the remote request protocol has
// exhausted its retries. Local hits resolve before GetBatch returns.
func (e *Engine) GetBatch(proof *model.ProofOfStore) <-chan requester.Response {
	output := make(chan requester.Response, 1)
	digest := proof.Digest()

	value, err := e.store.GetBatchFromLocal(digest)
	if err == nil {
		e.metrics.LocalBatchServed()
		output <- requester.Response{Digest: digest, Payload: value.Payload}
		return output
	}
	if !errors.Is(err, storage.ErrNotFound) {
		output <- requester.Response{Digest: digest, Err: fmt.Errorf("could not read local batch: %w", err)}
		return output
	}

	e.submit(getBatchForSelf{
		digest:  digest,
		signers: proof.Signers,
		output:  output,
	}, func() {
		output <- requester.Response{Digest: digest, Err: fmt.Errorf("batch reader overloaded, request dropped")}
	})
	return output
}

// OnBatchRequest queues a peer's request for a locally stored batch.
func (e *Engine) OnBatchRequest(originID model.Identifier, req *messages.BatchRequest) {
	e.submit(getBatchForPeer{
		originID: originID,
		digest:   req.Digest,
	}, nil)
}

// OnBatchResponse queues a batch payload received from a peer, fulfilling
// a pending request out-of-band.
func (e *Engine) OnBatchResponse(originID model.Identifier, res *messages.BatchResponse) {
	e.submit(batchResponse{
		originID: originID,
		digest:   res.Digest,
		payload:  res.Payload,
	}, nil)
}

// OnCertifiedRound queues a round-clock update from the consensus
// collaborator, driving the store's expiration sweep.
func (e *Engine) OnCertifiedRound(certified model.CertifiedRound) {
	e.submit(certifiedRoundUpdate{certified: certified}, nil)
}

func (e *Engine) submit(command interface{}, onDrop func()) {
	if e.commands.Push(command) {
		e.notifier.Notify()
		return
	}
	e.log.Warn().Msgf("command queue full, dropping %T", command)
	if onDrop != nil {
		onDrop()
	}
}

// processLoop is the engine's single logical task: a cooperative select
// over the maintenance timer and the inbound command queue. Timer ticks
// are checked first on each iteration to bound worst-case staleness of the
// retry sweep.
func (e *Engine) processLoop(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	defer e.pool.StopWait()

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	ready()

	doneSignal := ctx.Done()
	newCommandSignal := e.notifier.Channel()
	for {
		select {
		case <-doneSignal:
			return
		case <-ticker.C:
			e.req.HandleTimeouts()
			continue
		default:
		}

		select {
		case <-doneSignal:
			return
		case <-ticker.C:
			e.req.HandleTimeouts()
		case <-newCommandSignal:
			err := e.processQueuedCommands()
			if err != nil {
				// only invariant violations surface here
				ctx.Throw(err)
			}
		}
	}
}

// processQueuedCommands processes available commands until the queue is
// empty. No errors are expected during normal operation; a returned error
// is a symptom of a broken invariant and is fatal.
func (e *Engine) processQueuedCommands() error {
	for {
		command, ok := e.commands.Pop()
		if !ok {
			return nil
		}

		switch cmd := command.(type) {
		case getBatchForPeer:
			e.servePeer(cmd.originID, cmd.digest)
		case getBatchForSelf:
			e.req.AddRequest(cmd.digest, cmd.signers, cmd.output)
		case batchResponse:
			e.onResponse(cmd)
		case certifiedRoundUpdate:
			err := e.store.UpdateCertifiedRound(cmd.certified)
			if err != nil {
				if batchstore.IsUnrecoverable(err) {
					return fmt.Errorf("round clock violated monotonicity: %w", err)
				}
				return fmt.Errorf("could not update certified round: %w", err)
			}
		default:
			return fmt.Errorf("invalid command type (%T)", command)
		}
	}
}

// servePeer answers a peer's batch request on the worker pool. Unknown
// digests are dropped; the peer's own retry protocol compensates.
func (e *Engine) servePeer(originID model.Identifier, digest model.Identifier) {
	e.pool.Submit(func() {
		value, err := e.store.GetBatchFromLocal(digest)
		if err != nil {
			e.log.Debug().
				Err(err).
				Hex("origin", originID[:]).
				Hex("digest", digest[:]).
				Msg("could not serve batch request")
			return
		}
		e.metrics.LocalBatchServed()
		res := &messages.BatchResponse{
			Digest:  digest,
			Payload: value.Payload,
		}
		err = e.con.Submit(res, originID)
		if err != nil {
			e.log.Warn().Err(err).Hex("origin", originID[:]).Msg("could not send batch response")
		}
	})
}

// onResponse validates a received payload against the requested digest
// before handing it to the requester. A mismatching payload is discarded;
// the pending request keeps retrying against other signers.
func (e *Engine) onResponse(cmd batchResponse) {
	if cmd.payload.Digest() != cmd.digest {
		e.log.Warn().
			Hex("origin", cmd.originID[:]).
			Hex("digest", cmd.digest[:]).
			Msg("batch response payload does not match digest")
		return
	}
	e.req.ServeResponse(cmd.digest, cmd.payload)
}
