package signer

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/coresig/signer/bulletin"
	"github.com/coresig/signer/chain"
	"github.com/coresig/signer/chainclient"
	"github.com/coresig/signer/crypto"
	"github.com/coresig/signer/frost"
	"github.com/coresig/signer/retry"
	"github.com/coresig/signer/store"
	"github.com/sirupsen/logrus"
)

// EventKind discriminates the five input shapes SignerEngine consumes.
type EventKind int

const (
	EventNone EventKind = iota
	EventStatusCheck
	EventProposedBlocks
	EventBlockValidationResponse
	EventPeerMessages
)

// ValidationOutcome is the chain RPC's verdict on a submitted block.
type ValidationOutcome int

const (
	ValidationOk ValidationOutcome = iota
	ValidationReject
)

// ValidationResponse is the payload of an EventBlockValidationResponse.
type ValidationResponse struct {
	Outcome ValidationOutcome
	Hash    [32]byte
}

// Event is one item the engine's input queue delivers.
type Event struct {
	Kind               EventKind
	ProposedBlocks     []*chain.Block
	ValidationResponse *ValidationResponse
	PeerMessages       []bulletin.Message
}

// SignerEngine is the per-reward-cycle orchestration loop: it owns a
// CycleContext, the block store, the chain and bulletin clients, and the
// threshold-signing Party, and drives them through one event at a time.
// The engine is single-threaded: callers must serialize calls to
// HandleEvent.
type SignerEngine struct {
	Cycle    *CycleContext
	Store    store.BlockStore
	Chain    chainclient.ChainClient
	Bulletin bulletin.Bulletin
	Party    frost.Party
	Gate     *BlockGate

	RetryPolicy   retry.Policy
	FeeMicroUnits uint64
	SelfAddress   chain.Address

	// PrivateKey signs outbound packet envelopes; its public counterpart
	// must appear in Cycle.SignerPublicKeys under this signer's id so peers
	// can verify them.
	PrivateKey crypto.PrivateKey

	// GCKeepCycles governs block-store garbage collection: rows
	// whose reward cycle is more than this many cycles behind the current
	// one are purged at each cycle-boundary check. Zero disables GC.
	GCKeepCycles uint32

	// Results receives each completed OperationResult batch after the
	// engine's own handling, for subscribers outside the event loop. Nil
	// disables forwarding; a full channel drops the batch rather than
	// blocking the engine.
	Results chan<- []frost.OperationResult

	Log *logrus.Entry
}

func (e *SignerEngine) log() *logrus.Entry {
	if e.Log != nil {
		return e.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// HandleEvent processes one event to completion, including the
// cycle-boundary check, command execution, and the stale-view reset rule.
func (e *SignerEngine) HandleEvent(ctx context.Context, ev Event) error {
	e.checkCycleBoundary(ctx)
	if e.Cycle.State == StateTenureExceeded {
		return nil
	}

	switch ev.Kind {
	case EventProposedBlocks:
		e.handleProposedBlocks(ctx, ev.ProposedBlocks)
	case EventBlockValidationResponse:
		if ev.ValidationResponse != nil {
			e.handleValidationResponse(ctx, *ev.ValidationResponse)
		}
	case EventPeerMessages:
		e.handlePeerMessages(ctx, ev.PeerMessages)
	case EventStatusCheck:
		e.updateDkg(ctx)
	case EventNone:
		// spurious wakeup
	}

	e.runCommands(ctx)
	return nil
}

func (e *SignerEngine) checkCycleBoundary(ctx context.Context) {
	currentCycle, err := retry.DoValue(ctx, e.RetryPolicy, func() (uint64, error) {
		return e.Chain.GetCurrentRewardCycle(ctx)
	})
	if err != nil {
		e.log().WithError(err).Warn("failed to read current reward cycle")
		return
	}
	if e.GCKeepCycles > 0 {
		if purged, err := e.Store.PurgeBefore(currentCycle, e.GCKeepCycles); err != nil {
			e.log().WithError(err).Warn("failed to purge stale block-store rows")
		} else if purged > 0 {
			e.log().WithField("purged", purged).Debug("purged stale block-store rows")
		}
	}

	if currentCycle <= e.Cycle.RewardCycle {
		return
	}
	_, hasAgg, err := e.Chain.GetAggregatePublicKey(ctx, currentCycle)
	if err != nil {
		return
	}
	if hasAgg {
		e.Cycle.State = StateTenureExceeded
	}
}

func (e *SignerEngine) handleProposedBlocks(ctx context.Context, blocks []*chain.Block) {
	for _, b := range blocks {
		e.Cycle.CoordinatorSelector.SetLocalMetadata(b.Header.Metadata())

		hash := b.Header.SignerSignatureHash
		if err := e.Store.Put(e.Cycle.RewardCycle, hash, store.NewBlockInfo(b)); err != nil {
			e.log().WithError(err).Warn("failed to store proposed block")
			continue
		}
		if err := retry.Do(ctx, e.RetryPolicy, func() error {
			return e.Chain.SubmitBlockForValidation(ctx, b)
		}); err != nil {
			e.log().WithError(err).Warn("failed to submit block for validation")
		}
	}
}

func (e *SignerEngine) handleValidationResponse(ctx context.Context, vr ValidationResponse) {
	bi, err := e.Store.Get(e.Cycle.RewardCycle, vr.Hash)
	if err != nil {
		e.log().WithError(err).Warn("validation response for unknown block")
		return
	}

	var outcome AuditOutcome
	switch vr.Outcome {
	case ValidationOk:
		signerIDs := make([]uint32, 0, len(e.Cycle.SignerAddressToID))
		for _, id := range e.Cycle.SignerAddressToID {
			signerIDs = append(signerIDs, id)
		}
		txs, fetchErr := e.Bulletin.GetSignerTransactionsWithRetry(ctx, signerIDs)
		var missing []chain.TxId
		outcome, missing = e.Gate.AuditBlock(ctx, bi.Block, txs, fetchErr)
		if outcome == AuditOK {
			bi.Valid = store.ValidityValid
		} else {
			bi.Valid = store.ValidityInvalid
		}
		if outcome == AuditMissingTransactions {
			e.sendMessage(ctx, bulletin.Message{Kind: bulletin.MsgBlockRejection, BlockRejection: &bulletin.BlockRejection{
				Code: bulletin.RejectMissingTransactions, Hash: vr.Hash, MissingTxIDs: missing,
			}})
		} else if outcome == AuditConnectivityIssue {
			e.sendMessage(ctx, bulletin.Message{Kind: bulletin.MsgBlockRejection, BlockRejection: &bulletin.BlockRejection{
				Code: bulletin.RejectConnectivityIssues, Hash: vr.Hash,
			}})
		}
	case ValidationReject:
		bi.Valid = store.ValidityInvalid
		outcome = AuditOK // tx audit is moot; the chain itself rejected the block
		e.sendMessage(ctx, bulletin.Message{Kind: bulletin.MsgBlockRejection, BlockRejection: &bulletin.BlockRejection{
			Code: bulletin.RejectValidationFailed, Hash: vr.Hash,
		}})
	}

	if bi.PendingNonceRequest != nil {
		vote, emit := e.Gate.DeriveVote(vr.Hash, bi.Valid, outcome)
		req := bi.PendingNonceRequest
		bi.PendingNonceRequest = nil
		if emit {
			bi.SetVote(vote)
		}
		// Persist before resuming the stashed request: dispatch can finish a
		// signing round and remove this row, which a later Put would
		// resurrect.
		if err := e.Store.Put(e.Cycle.RewardCycle, vr.Hash, bi); err != nil {
			e.log().WithError(err).Warn("failed to persist block info")
		}
		if emit {
			req.Msg.Payload = CachedVoteBytes(bi)
			e.dispatchToParty(ctx, []frost.Packet{*req})
		}
	} else {
		if err := e.Store.Put(e.Cycle.RewardCycle, vr.Hash, bi); err != nil {
			e.log().WithError(err).Warn("failed to persist block info")
		}
		if e.Cycle.IsCoordinator() && bi.Valid == store.ValidityValid && !bi.SignedOver && !e.Cycle.Governor.BackOffActive() {
			e.Cycle.Commands.PushBack(Command{Kind: CommandSign, Block: bi.Block})
		}
	}

	e.Cycle.Governor.MaybeReset()
}

func (e *SignerEngine) handlePeerMessages(ctx context.Context, msgs []bulletin.Message) {
	var accepted []frost.Packet
	for _, m := range msgs {
		switch m.Kind {
		case bulletin.MsgPacket:
			if m.Packet == nil {
				continue
			}
			pe := m.Packet
			_, _, local := e.Cycle.CoordinatorSelector.Current()
			if nack := e.Cycle.Governor.ObservePacket(e.Cycle.SignerID, local, pe.SenderMetadata, pe.SenderID); nack != nil {
				e.sendMessage(ctx, bulletin.Message{Kind: bulletin.MsgNack, Nack: nack})
			}

			if !e.verifyInboundPacket(pe) {
				continue // silently drop: unknown sender or bad signature
			}

			packet := pe.Packet
			switch packet.Msg.Kind {
			case frost.MsgNonceRequest:
				if !e.handleNonceRequest(ctx, &packet) {
					continue // cached/stashed for later, or rejected; nothing to forward yet
				}
			case frost.MsgSignatureShareRequest:
				bi, ok := e.blockInfoForRequest(packet.Msg.Payload)
				if !ok || !ValidateSignatureShareRequest(packet.Msg.Payload, bi) {
					continue // silently drop
				}
				packet.Msg.Payload = CachedVoteBytes(bi)
			}
			accepted = append(accepted, packet)

		case bulletin.MsgNack:
			if m.Nack != nil {
				_, _, local := e.Cycle.CoordinatorSelector.Current()
				e.Cycle.Governor.ObserveNack(*m.Nack, e.Cycle.SignerID, local)
			}

		case bulletin.MsgBlockResponse, bulletin.MsgTransactions:
			// ignored at this layer
		}
	}

	if len(accepted) > 0 {
		e.dispatchToParty(ctx, accepted)
	}
}

// verifyInboundPacket checks pe's envelope signature against the cycle's
// known signer public keys and, for the round-driving message kinds a
// dishonest peer could otherwise spoof, against the expected coordinator's
// public key.
func (e *SignerEngine) verifyInboundPacket(pe *bulletin.PacketEnvelope) bool {
	pub, ok := e.Cycle.SignerPublicKeys[pe.SenderID]
	if !ok {
		return false
	}
	if !verifyPacketEnvelope(crypto.PublicKey(pub[:]), pe) {
		return false
	}
	if pe.Packet.Msg.Kind == frost.MsgNonceRequest || pe.Packet.Msg.Kind == frost.MsgSignatureShareRequest {
		coordID, _, _ := e.Cycle.CoordinatorSelector.Current()
		if pe.SenderID != coordID {
			return false
		}
	}
	return true
}

// handleNonceRequest implements the three-way branch for a
// NonceRequest packet, whose payload is the miner's serialized block (not
// yet a vote): an unseen hash is cached and submitted for validation, a
// seen-but-unvalidated hash stashes the request, and only a block that has
// already been validated resumes immediately, overwriting the packet's
// payload with this signer's vote. The bool result reports whether packet
// is now ready to be handed to the signing library; false means the
// request was cached, stashed, or rejected outright.
func (e *SignerEngine) handleNonceRequest(ctx context.Context, packet *frost.Packet) bool {
	var block chain.Block
	if err := json.Unmarshal(packet.Msg.Payload, &block); err != nil {
		return false // not a recognizable block stream; reject
	}
	hash := block.Header.SignerSignatureHash

	bi, err := e.Store.Get(e.Cycle.RewardCycle, hash)
	if err != nil {
		bi = store.NewBlockInfo(&block)
		reqCopy := *packet
		bi.PendingNonceRequest = &reqCopy
		if err := e.Store.Put(e.Cycle.RewardCycle, hash, bi); err != nil {
			e.log().WithError(err).Warn("failed to store block from nonce request")
		}
		if err := retry.Do(ctx, e.RetryPolicy, func() error {
			return e.Chain.SubmitBlockForValidation(ctx, &block)
		}); err != nil {
			e.log().WithError(err).Warn("failed to submit block for validation")
		}
		return false
	}

	if bi.Valid == store.ValidityUnknown {
		reqCopy := *packet
		bi.PendingNonceRequest = &reqCopy
		if err := e.Store.Put(e.Cycle.RewardCycle, hash, bi); err != nil {
			e.log().WithError(err).Warn("failed to persist pending nonce request")
		}
		return false
	}

	vote, emit := e.Gate.DeriveVote(hash, bi.Valid, AuditOK)
	if !emit {
		return false
	}
	bi.SetVote(vote)
	packet.Msg.Payload = CachedVoteBytes(bi)
	if err := e.Store.Put(e.Cycle.RewardCycle, hash, bi); err != nil {
		e.log().WithError(err).Warn("failed to persist block info")
	}
	return true
}

// blockInfoForRequest looks up the BlockInfo a signature-share request's
// payload refers to by the hash it already encodes as a vote. NonceRequest
// packets do not go through this path: their payload is a serialized block,
// handled by handleNonceRequest instead.
func (e *SignerEngine) blockInfoForRequest(payload []byte) (*store.BlockInfo, bool) {
	v := chain.Vote(payload)
	if !v.Valid() {
		return nil, false
	}
	bi, err := e.Store.Get(e.Cycle.RewardCycle, v.Hash())
	if err != nil {
		return nil, false
	}
	return bi, true
}

func (e *SignerEngine) dispatchToParty(ctx context.Context, packets []frost.Packet) {
	e.Cycle.CoordinatorSelector.RecordProgress()

	if outbound, err := e.Party.SignerParty.ProcessInboundMessages(packets); err != nil {
		e.log().WithError(err).Warn("signer party failed to process inbound messages")
	} else {
		for _, p := range outbound {
			e.broadcastPacket(ctx, p)
		}
	}

	outbound, results, err := e.Party.Coordinator.ProcessInboundMessages(packets)
	if err != nil {
		e.log().WithError(err).Warn("coordinator failed to process inbound messages")
		return
	}
	for _, p := range outbound {
		e.broadcastPacket(ctx, p)
	}
	if len(results) > 0 {
		e.Cycle.State = StateIdle
		e.handleOperationResults(ctx, results)
		if e.Results != nil {
			select {
			case e.Results <- results:
			default:
				e.log().Warn("operation-result subscriber is not keeping up; dropping batch")
			}
		}
	}
}

func (e *SignerEngine) runCommands(ctx context.Context) {
	if e.Cycle.State != StateIdle || !e.Cycle.IsCoordinator() || e.Cycle.Governor.BackOffActive() {
		return
	}
	cmd, ok := e.Cycle.Commands.Pop()
	if !ok {
		return
	}

	switch cmd.Kind {
	case CommandDkg:
		lastRound, hasLastRound, err := e.Chain.GetLastRound(ctx, e.Cycle.RewardCycle)
		if err != nil {
			e.log().WithError(err).Warn("failed to read last DKG round")
			return
		}
		var dkgID uint64
		if hasLastRound {
			dkgID = lastRound
		}
		e.Party.Coordinator.SetCurrentDkgID(dkgID)
		packet, err := e.Party.Coordinator.StartDkgRound()
		if err != nil {
			e.log().WithError(err).Warn("failed to start DKG round")
			return
		}
		e.broadcastPacket(ctx, packet)
		e.Cycle.State = StateOperationInProgress

	case CommandSign:
		hash := cmd.Block.Header.SignerSignatureHash
		bi, err := e.Store.Get(e.Cycle.RewardCycle, hash)
		if err != nil {
			bi = store.NewBlockInfo(cmd.Block)
		}
		if bi.SignedOver {
			return
		}
		// The round opens over the serialized block, not a precomputed
		// vote: every signer, this one included, derives its own vote when
		// the round-opening nonce request comes back through the bulletin.
		blockBytes, err := json.Marshal(cmd.Block)
		if err != nil {
			e.log().WithError(err).Warn("failed to serialize block for signing round")
			return
		}
		packet, err := e.Party.Coordinator.StartSigningRound(blockBytes, cmd.Taproot, cmd.MerkleRoot)
		if err != nil {
			e.log().WithError(err).Warn("failed to start signing round")
			return
		}
		bi.MarkSignedOver()
		if err := e.Store.Put(e.Cycle.RewardCycle, hash, bi); err != nil {
			e.log().WithError(err).Warn("failed to persist signed-over block")
		}
		e.broadcastPacket(ctx, packet)
		e.Cycle.State = StateOperationInProgress
	}
}

func (e *SignerEngine) handleOperationResults(ctx context.Context, results []frost.OperationResult) {
	for _, r := range results {
		switch r.Kind {
		case frost.ResultSign:
			e.handleSignResult(ctx, r)
		case frost.ResultDkg:
			e.handleDkgResult(ctx, r)
		case frost.ResultSignError:
			e.handleSignError(ctx, r)
		case frost.ResultDkgError:
			e.log().WithError(r.DkgErr).Warn("DKG round failed")
		case frost.ResultSignTaproot:
			// this system signs only with FROST; no action.
		}
	}
}

func (e *SignerEngine) handleSignResult(ctx context.Context, r frost.OperationResult) {
	msg := e.Party.Coordinator.GetMessage()
	vote := chain.Vote(msg)
	if !vote.Valid() {
		e.log().Warn("sign result message is not a recognizable vote encoding")
		return
	}
	aggregate, hasAgg := e.Party.Coordinator.GetAggregatePublicKey()
	if !hasAgg {
		e.log().Warn("sign result with no aggregate public key on record")
		return
	}
	if err := crypto.Verify(crypto.PublicKey(aggregate[:]), msg, hex.EncodeToString(r.Signature)); err != nil {
		e.log().WithError(err).Warn("sign result failed aggregate verification; dropping")
		return
	}

	hash := vote.Hash()
	kind := bulletin.BlockAccepted
	if vote.IsNo() {
		kind = bulletin.BlockRejectedOutcome
	}
	e.sendMessage(ctx, bulletin.Message{Kind: bulletin.MsgBlockResponse, BlockResponse: &bulletin.BlockResponse{
		Kind: kind, Hash: hash, Signature: r.Signature,
	}})
	if err := e.Store.Remove(e.Cycle.RewardCycle, hash); err != nil {
		e.log().WithError(err).Warn("failed to remove signed-over block from store")
	}
}

func (e *SignerEngine) handleDkgResult(ctx context.Context, r frost.OperationResult) {
	slotID, err := e.Bulletin.GetSignerSlotID(ctx)
	if err != nil {
		e.log().WithError(err).Warn("failed to read signer slot id")
		return
	}
	dkgID := e.Party.Coordinator.CurrentDkgID()

	epoch, err := e.Chain.GetNodeEpoch(ctx)
	if err != nil {
		e.log().WithError(err).Warn("failed to read node epoch")
		return
	}
	var fee *uint64
	if epoch.IsPreNakamoto() {
		f := e.FeeMicroUnits
		fee = &f
	}

	ownTxs, err := e.Bulletin.GetSignerTransactionsWithRetry(ctx, []uint32{slotID})
	if err != nil {
		e.log().WithError(err).Warn("failed to read own bulletin transactions")
		ownTxs = nil
	}
	if hasPendingVote(ownTxs, r.DkgPoint, dkgID) {
		return // a vote for this (point, round) is already on the bulletin
	}

	tx, err := e.Chain.BuildVoteForAggregatePublicKey(ctx, slotID, dkgID, r.DkgPoint, fee)
	if err != nil {
		e.log().WithError(err).Warn("failed to build vote-for-aggregate-public-key transaction")
		return
	}
	if epoch.IsPreNakamoto() {
		if _, err := retry.DoValue(ctx, e.RetryPolicy, func() (chain.TxId, error) {
			return e.Chain.SubmitTransaction(ctx, tx)
		}); err != nil {
			e.log().WithError(err).Warn("failed to submit vote transaction to mempool")
		}
	}

	ownTxs = append(ownTxs, tx)
	e.sendMessage(ctx, bulletin.Message{Kind: bulletin.MsgTransactions, Transactions: ownTxs})
}

// hasPendingVote reports whether txs already contains a
// vote-for-aggregate-public-key call for the same (point, round) pair.
func hasPendingVote(txs []*chain.Transaction, point chain.Point, round uint64) bool {
	for _, tx := range txs {
		var payload chain.ContractCallPayload
		if err := json.Unmarshal(tx.Payload, &payload); err != nil || !payload.IsVoteForAggregatePublicKeyCall() {
			continue
		}
		args, err := chain.ParseVoteForAggregatePublicKeyArgs(payload.Args)
		if err == nil && args.Round == round && args.Point == point {
			return true
		}
	}
	return false
}

func (e *SignerEngine) handleSignError(ctx context.Context, r frost.OperationResult) {
	if r.SignErr == nil {
		return
	}
	switch r.SignErr.Kind {
	case frost.SignErrInsufficientSigners:
		// The stored message is the vote once the round adopted one, or
		// still the serialized block if it failed before that.
		msg := e.Party.Coordinator.GetMessage()
		var hash [32]byte
		if v := chain.Vote(msg); v.Valid() {
			hash = v.Hash()
		} else {
			var block chain.Block
			if err := json.Unmarshal(msg, &block); err == nil {
				hash = block.Header.SignerSignatureHash
			}
		}
		e.sendMessage(ctx, bulletin.Message{Kind: bulletin.MsgBlockRejection, BlockRejection: &bulletin.BlockRejection{
			Code: bulletin.RejectInsufficientSigners, Hash: hash, MaliciousSigners: r.SignErr.MaliciousSigners,
		}})
	default:
		e.log().WithError(r.SignErr).Warn("signing round failed")
	}
}

// updateDkg is the DKG update pass, invoked on tick or cycle
// change.
func (e *SignerEngine) updateDkg(ctx context.Context) {
	onChain, err := retry.DoValue(ctx, e.RetryPolicy, func() (pointResult, error) {
		p, ok, err := e.Chain.GetAggregatePublicKey(ctx, e.Cycle.RewardCycle)
		return pointResult{point: p, ok: ok}, err
	})
	if err != nil {
		e.log().WithError(err).Warn("failed to read on-chain aggregate public key")
		e.Cycle.Governor.MaybeReset()
		return
	}
	if onChain.ok {
		cached, hasCached := e.Party.Coordinator.GetAggregatePublicKey()
		if !hasCached || cached != onChain.point {
			e.Party.Coordinator.SetAggregatePublicKey(onChain.point)
		}
	} else if e.Cycle.IsCoordinator() && e.Cycle.State == StateIdle && !e.Cycle.Governor.BackOffActive() {
		e.maybeQueueDkg(ctx)
	}
	e.Cycle.Governor.MaybeReset()
}

type pointResult struct {
	point chain.Point
	ok    bool
}

func (e *SignerEngine) maybeQueueDkg(ctx context.Context) {
	slotID, err := e.Bulletin.GetSignerSlotID(ctx)
	if err != nil {
		e.log().WithError(err).Warn("failed to read signer slot id")
		return
	}
	dkgID := e.Party.Coordinator.CurrentDkgID()

	ownTxs, err := e.Bulletin.GetSignerTransactionsWithRetry(ctx, []uint32{slotID})
	if err != nil {
		e.log().WithError(err).Warn("failed to read own bulletin transactions")
		return
	}
	for _, tx := range ownTxs {
		var payload chain.ContractCallPayload
		if err := json.Unmarshal(tx.Payload, &payload); err != nil || !payload.IsVoteForAggregatePublicKeyCall() {
			continue
		}
		args, err := chain.ParseVoteForAggregatePublicKeyArgs(payload.Args)
		if err == nil && args.Round == dkgID {
			return // a pending vote for this DKG round already exists
		}
	}

	hasVote, err := retry.DoValue(ctx, e.RetryPolicy, func() (bool, error) {
		_, ok, err := e.Chain.GetVoteForAggregatePublicKey(ctx, dkgID, e.Cycle.RewardCycle, e.SelfAddress)
		return ok, err
	})
	if err != nil {
		e.log().WithError(err).Warn("failed to check for an existing on-chain vote")
		return
	}
	if hasVote {
		return
	}

	e.Cycle.Commands.PushDkgFront()
}

func (e *SignerEngine) broadcastPacket(ctx context.Context, p frost.Packet) {
	_, _, local := e.Cycle.CoordinatorSelector.Current()
	pe := &bulletin.PacketEnvelope{
		Packet: p, SenderID: e.Cycle.SignerID, SenderMetadata: local,
	}
	if e.PrivateKey != nil {
		signPacketEnvelope(e.PrivateKey, pe)
	}
	e.sendMessage(ctx, bulletin.Message{Kind: bulletin.MsgPacket, Packet: pe})
}

func (e *SignerEngine) sendMessage(ctx context.Context, msg bulletin.Message) {
	if _, err := e.Bulletin.SendMessageWithRetry(ctx, msg); err != nil {
		e.log().WithError(err).Warn("failed to write message to bulletin")
	}
}
