// Package quorumstore assembles the batch store, batch requester, batch
// reader and proof coordinator into one subsystem. A node builds batches
// from its local transaction intake, disseminates them, collects signed
// acknowledgements until a quorum of stake certifies availability, and
// hands the resulting proofs of store to consensus in place of payloads.
package quorumstore

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dapperlabs/quorumstore/engine/quorumstore/batchstore"
	"github.com/dapperlabs/quorumstore/engine/quorumstore/proofs"
	"github.com/dapperlabs/quorumstore/engine/quorumstore/reader"
	"github.com/dapperlabs/quorumstore/engine/quorumstore/requester"
	"github.com/dapperlabs/quorumstore/model"
	"github.com/dapperlabs/quorumstore/model/messages"
	"github.com/dapperlabs/quorumstore/module"
	"github.com/dapperlabs/quorumstore/module/counters"
	"github.com/dapperlabs/quorumstore/module/irrecoverable"
	"github.com/dapperlabs/quorumstore/module/signature"
	"github.com/dapperlabs/quorumstore/module/util"
	"github.com/dapperlabs/quorumstore/network"
	"github.com/dapperlabs/quorumstore/storage"
)

// QuorumStore is the assembled subsystem. It exposes the ingestion surface
// for network events, the batch submission path for the local transaction
// intake, and the proof/payload retrieval surface for consensus.
type QuorumStore struct {
	log       zerolog.Logger
	cfg       Config
	me        module.Local
	committee proofs.Committee

	store     *batchstore.BatchStore
	requester *requester.Requester
	reader    *reader.Engine
	proofCore *proofs.Core
	proofs    *proofs.Engine
	certified counters.StrictMonotonousCounter

	batchCon network.Conduit // batch dissemination
	ackCon   network.Conduit // acknowledgements back to batch authors
}

// New wires the quorum store from its collaborators. The committee must
// contain the local node; conduits carry batch dissemination, batch
// requests/responses and acknowledgements respectively.
func New(
	log zerolog.Logger,
	metrics module.QuorumStoreMetrics,
	me module.Local,
	committee proofs.Committee,
	db storage.Batches,
	batchCon network.Conduit,
	requestCon network.Conduit,
	ackCon network.Conduit,
	cfg Config,
	lastCertifiedRound uint64,
) (*QuorumStore, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if _, ok := committee.Identity(me.NodeID()); !ok {
		return nil, fmt.Errorf("local node (%x) is not in the committee", me.NodeID())
	}

	store := batchstore.New(log, metrics, db, batchstore.Config{
		Epoch:       cfg.Epoch,
		MemoryQuota: cfg.MemoryQuota,
		DBQuota:     cfg.DBQuota,
		BehindGap:   cfg.BehindGap,
		BeyondGap:   cfg.BeyondGap,
		GraceRounds: cfg.GraceRounds,
	}, lastCertifiedRound)

	req := requester.New(log, metrics, requestCon, requester.Config{
		NumPeers:      cfg.RequestNumPeers,
		RetryLimit:    cfg.RequestRetryLimit,
		RetryInterval: cfg.RequestRetryInterval,
		RPCTimeout:    cfg.RPCTimeout,
	})

	readerEngine, err := reader.New(log, metrics, store, req, requestCon, cfg.NumWorkers, cfg.GCInterval)
	if err != nil {
		return nil, fmt.Errorf("could not create batch reader: %w", err)
	}

	proofCore, err := proofs.NewCore(log, metrics, me.NodeID(), committee, store, cfg.ProofTimeout)
	if err != nil {
		return nil, fmt.Errorf("could not create proof coordinator core: %w", err)
	}
	proofEngine, err := proofs.NewEngine(log, proofCore, batchCon, cfg.GCInterval)
	if err != nil {
		return nil, fmt.Errorf("could not create proof coordinator: %w", err)
	}

	qs := &QuorumStore{
		log:       log.With().Str("engine", "quorum_store").Logger(),
		cfg:       cfg,
		me:        me,
		committee: committee,
		store:     store,
		requester: req,
		reader:    readerEngine,
		proofCore: proofCore,
		proofs:    proofEngine,
		certified: counters.NewMonotonousCounter(lastCertifiedRound),
		batchCon:  batchCon,
		ackCon:    ackCon,
	}
	return qs, nil
}

// Start launches the actor components. Fatal internal failures are thrown
// on the given signaler context.
func (qs *QuorumStore) Start(ctx irrecoverable.SignalerContext) {
	qs.reader.Start(ctx)
	qs.proofs.Start(ctx)
}

func (qs *QuorumStore) Ready() <-chan struct{} {
	return util.AllReady(qs.reader, qs.proofs)
}

func (qs *QuorumStore) Done() <-chan struct{} {
	return util.AllDone(qs.reader, qs.proofs)
}

// Proofs returns the channel delivering proofs of store completed for
// batches authored by this node.
func (qs *QuorumStore) Proofs() <-chan *model.ProofOfStore {
	return qs.proofs.Proofs()
}

// SubmitBatch builds a batch from the given payload, persists it locally,
// disseminates it to the committee and starts collecting acknowledgements.
// The completed proof, if a quorum is reached before the proof timeout, is
// delivered on the Proofs channel.
func (qs *QuorumStore) SubmitBatch(expirationRound uint64, payload model.Payload) (*model.Batch, error) {
	if uint64(len(payload)) > qs.cfg.SenderMaxBatchTxns {
		return nil, fmt.Errorf("batch of %d txns exceeds sender limit of %d", len(payload), qs.cfg.SenderMaxBatchTxns)
	}
	if numBytes := payload.NumBytes(); numBytes > qs.cfg.SenderMaxBatchBytes {
		return nil, fmt.Errorf("batch of %d bytes exceeds sender limit of %d", numBytes, qs.cfg.SenderMaxBatchBytes)
	}

	expiration := model.CertifiedRound{Epoch: qs.cfg.Epoch, Round: expirationRound}
	batch, err := model.NewBatch(qs.me.NodeID(), qs.cfg.Epoch, expiration, payload)
	if err != nil {
		return nil, fmt.Errorf("could not build batch: %w", err)
	}

	_, err = qs.store.Save(batch.AsPersisted())
	if err != nil {
		return nil, fmt.Errorf("could not save own batch: %w", err)
	}
	qs.proofCore.RegisterBatch(batch.Info)

	// count our own acknowledgement before disseminating
	signed, err := qs.signAck(batch.Info)
	if err != nil {
		return nil, fmt.Errorf("could not sign own batch: %w", err)
	}
	qs.proofs.OnSignedBatchInfo(&messages.SignedBatchInfoMessage{Signed: signed})

	err = qs.batchCon.Publish(&messages.BatchMessage{Batch: batch})
	if err != nil {
		return nil, fmt.Errorf("could not disseminate batch: %w", err)
	}

	return batch, nil
}

// OnBatch ingests a batch disseminated by a peer. A batch that passes the
// receiver limits and is admitted by the store is acknowledged back to its
// author with a signature over its info.
func (qs *QuorumStore) OnBatch(originID model.Identifier, msg *messages.BatchMessage) {
	batch := msg.Batch
	lg := qs.log.With().
		Hex("origin", originID[:]).
		Hex("digest", batch.Info.Digest[:]).
		Logger()

	if originID != batch.Info.Author {
		lg.Warn().Hex("author", batch.Info.Author[:]).Msg("dropping batch relayed by non-author")
		return
	}
	if uint64(len(batch.Payload)) > qs.cfg.ReceiverMaxBatchTxns {
		lg.Warn().Int("txns", len(batch.Payload)).Msg("dropping batch above receiver txn limit")
		return
	}
	if numBytes := batch.Payload.NumBytes(); numBytes > qs.cfg.ReceiverMaxBatchBytes {
		lg.Warn().Uint64("bytes", numBytes).Msg("dropping batch above receiver byte limit")
		return
	}
	if digest := batch.Payload.Digest(); digest != batch.Info.Digest {
		lg.Warn().Hex("computed", digest[:]).Msg("dropping batch with mismatching digest")
		return
	}
	if batch.Info.NumTxns != uint64(len(batch.Payload)) || batch.Info.NumBytes != batch.Payload.NumBytes() {
		lg.Warn().Msg("dropping batch with inconsistent payload counts")
		return
	}

	_, err := qs.store.Save(batch.AsPersisted())
	if err != nil {
		lg.Debug().Err(err).Msg("batch not admitted")
		return
	}

	signed, err := qs.signAck(batch.Info)
	if err != nil {
		lg.Err(err).Msg("could not sign batch acknowledgement")
		return
	}
	err = qs.ackCon.Submit(&messages.SignedBatchInfoMessage{Signed: signed}, batch.Info.Author)
	if err != nil {
		lg.Warn().Err(err).Msg("could not send batch acknowledgement")
	}
}

// OnSignedBatchInfo ingests an acknowledgement for one of our own batches.
func (qs *QuorumStore) OnSignedBatchInfo(originID model.Identifier, msg *messages.SignedBatchInfoMessage) {
	if originID != msg.Signed.Signer {
		qs.log.Warn().
			Hex("origin", originID[:]).
			Hex("signer", msg.Signed.Signer[:]).
			Msg("dropping acknowledgement relayed by non-signer")
		return
	}
	qs.proofs.OnSignedBatchInfo(msg)
}

// OnBatchRequest ingests a peer's request for a locally stored payload.
func (qs *QuorumStore) OnBatchRequest(originID model.Identifier, req *messages.BatchRequest) {
	qs.reader.OnBatchRequest(originID, req)
}

// OnBatchResponse ingests a peer's answer to one of our batch requests.
func (qs *QuorumStore) OnBatchResponse(originID model.Identifier, res *messages.BatchResponse) {
	qs.reader.OnBatchResponse(originID, res)
}

// OnCertifiedRound advances the expiration clock from consensus progress.
func (qs *QuorumStore) OnCertifiedRound(certified model.CertifiedRound) {
	qs.certified.Set(certified.Round)
	qs.reader.OnCertifiedRound(certified)
}

// LastCertifiedRound returns the highest certified round observed so far.
// The store's expiration sweep may lag behind it by queued commands.
func (qs *QuorumStore) LastCertifiedRound() uint64 {
	return qs.certified.Value()
}

// OnCommit notifies the proof coordinator that the listed batches were
// committed by consensus and their aggregation state can be released.
func (qs *QuorumStore) OnCommit(infos []model.BatchInfo) {
	qs.proofs.OnCommit(infos)
}

// GetBatch resolves a proof of store to its payload, fetching it from the
// proof's signers when it is not available locally. The returned channel
// receives exactly one response.
func (qs *QuorumStore) GetBatch(proof *model.ProofOfStore) <-chan requester.Response {
	return qs.reader.GetBatch(proof)
}

// VerifyProof checks a proof of store received from a peer against the
// committee: known signers, quorum stake and a valid aggregated signature.
func (qs *QuorumStore) VerifyProof(proof *model.ProofOfStore) (bool, error) {
	return proofs.Verify(proof, qs.committee)
}

func (qs *QuorumStore) signAck(info model.BatchInfo) (*model.SignedBatchInfo, error) {
	hasher := signature.NewBLSHasher(signature.BatchAckTag)
	sig, err := qs.me.Sign(info.SignableBytes(), hasher)
	if err != nil {
		return nil, err
	}
	return &model.SignedBatchInfo{
		Info:      info,
		Signer:    qs.me.NodeID(),
		Signature: sig,
	}, nil
}
