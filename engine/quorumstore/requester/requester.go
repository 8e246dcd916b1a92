// Package requester resolves missing batch payloads by fanning requests
// out to a bounded, rotating subset of the peers that signed for the batch,
// with bounded retries per request.
package requester

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dapperlabs/quorumstore/model"
	"github.com/dapperlabs/quorumstore/model/messages"
	"github.com/dapperlabs/quorumstore/module"
	"github.com/dapperlabs/quorumstore/network"
)

// ErrRequestFailed is returned through the response channel when a request
// has exhausted its retries. Callers must treat this as a terminal failure
// for the requested digest, not as an empty result.
var ErrRequestFailed = errors.New("batch request exhausted retries")

// Response resolves one pending batch request: either a payload or a
// terminal error.
type Response struct {
	Digest  model.Identifier
	Payload model.Payload
	Err     error
}

// Config holds the retry parameters of the requester.
type Config struct {
	// NumPeers caps the recipients of a single request attempt.
	NumPeers int
	// RetryLimit bounds the number of attempts per digest, the initial
	// request included.
	RetryLimit int
	// RetryInterval is the minimum spacing between consecutive attempts
	// for the same digest.
	RetryInterval time.Duration
	// RPCTimeout is how long an attempt waits for an answer; an attempt
	// unanswered within it is retried or failed.
	RPCTimeout time.Duration
}

type item struct {
	digest    model.Identifier
	signers   []model.Identifier // shuffled once, walked in rotating windows
	attempts  int
	deadline  time.Time
	requested time.Time
	nonce     uint64
	outputs   []chan<- Response
}

// Requester tracks pending batch requests. It is driven from the batch
// reader's event loop: AddRequest and ServeResponse are called per command,
// HandleTimeouts per timer tick. All methods are safe for concurrent use.
type Requester struct {
	mu      sync.Mutex
	log     zerolog.Logger
	metrics module.QuorumStoreMetrics
	con     network.Conduit
	cfg     Config
	items   map[model.Identifier]*item
	nonce   uint64
}

func New(log zerolog.Logger, metrics module.QuorumStoreMetrics, con network.Conduit, cfg Config) *Requester {
	r := &Requester{
		log:     log.With().Str("component", "batch_requester").Logger(),
		metrics: metrics,
		con:     con,
		cfg:     cfg,
		items:   make(map[model.Identifier]*item),
	}
	return r
}

// AddRequest registers a pending request for the payload of the given
// digest and dispatches the first attempt. The candidate recipients are the
// signers of the batch's proof; they are shuffled for load distribution
// across validators. The response channel is resolved exactly once and
// must have capacity for one response. If a request for the digest is
// already pending, the channel is attached to it and no new attempt is
// dispatched.
func (r *Requester) AddRequest(digest model.Identifier, signers []model.Identifier, output chan<- Response) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if it, pending := r.items[digest]; pending {
		it.outputs = append(it.outputs, output)
		return
	}

	shuffled := make([]model.Identifier, len(signers))
	copy(shuffled, signers)
	rand.Shuffle(len(shuffled), func(i int, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	r.nonce++
	it := &item{
		digest:    digest,
		signers:   shuffled,
		requested: time.Now(),
		nonce:     r.nonce,
		outputs:   []chan<- Response{output},
	}
	r.items[digest] = it
	r.metrics.RemoteBatchRequested()

	r.dispatch(it)
}

// HandleTimeouts retries or fails all requests whose per-attempt timeout
// has elapsed. It is invoked periodically by the owning event loop.
func (r *Requester) HandleTimeouts() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for digest, it := range r.items {
		if now.Before(it.deadline) {
			continue
		}
		if it.attempts >= r.cfg.RetryLimit {
			delete(r.items, digest)
			r.metrics.RemoteBatchFailed()
			r.log.Warn().
				Hex("digest", digest[:]).
				Int("attempts", it.attempts).
				Msg("batch request failed, retries exhausted")
			resolve(it, Response{Digest: digest, Err: fmt.Errorf("digest (%x): %w", digest, ErrRequestFailed)})
			continue
		}
		r.dispatch(it)
	}
}

// ServeResponse fulfills the pending request for the digest, if one exists.
// Late or duplicate responses for an already-resolved digest are discarded.
func (r *Requester) ServeResponse(digest model.Identifier, payload model.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, pending := r.items[digest]
	if !pending {
		r.log.Debug().Hex("digest", digest[:]).Msg("dropping response for resolved digest")
		return
	}
	delete(r.items, digest)

	r.metrics.RemoteBatchFetched(time.Since(it.requested))
	resolve(it, Response{Digest: digest, Payload: payload})
}

// Pending returns the number of in-flight requests.
func (r *Requester) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// dispatch sends one request attempt to the next window of recipients.
// Must be called with the requester lock held.
func (r *Requester) dispatch(it *item) {

	targets := r.window(it)
	it.attempts++
	// the next attempt waits out both the answer window and the retry
	// spacing
	wait := r.cfg.RPCTimeout
	if r.cfg.RetryInterval > wait {
		wait = r.cfg.RetryInterval
	}
	it.deadline = time.Now().Add(wait)

	if len(targets) == 0 {
		// no candidate signers; the item stays pending and fails once the
		// retry budget is spent
		return
	}

	req := &messages.BatchRequest{
		Digest: it.digest,
		Nonce:  it.nonce,
	}
	err := r.con.Submit(req, targets...)
	if err != nil {
		// transport errors are absorbed by the retry protocol
		r.log.Warn().Err(err).Hex("digest", it.digest[:]).Msg("could not submit batch request")
	}
}

// window selects up to NumPeers recipients, rotating through the shuffled
// signer list across attempts so retries reach different validators.
func (r *Requester) window(it *item) []model.Identifier {
	if len(it.signers) == 0 {
		return nil
	}
	count := r.cfg.NumPeers
	if count > len(it.signers) {
		count = len(it.signers)
	}
	targets := make([]model.Identifier, 0, count)
	start := it.attempts * r.cfg.NumPeers
	for i := 0; i < count; i++ {
		targets = append(targets, it.signers[(start+i)%len(it.signers)])
	}
	return targets
}

func resolve(it *item, response Response) {
	for _, output := range it.outputs {
		output <- response
	}
}
