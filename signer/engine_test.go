package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/coresig/signer/bulletin"
	"github.com/coresig/signer/chain"
	"github.com/coresig/signer/chainclient"
	"github.com/coresig/signer/crypto"
	"github.com/coresig/signer/frost"
	_ "github.com/coresig/signer/frost/plugins/refsig"
	"github.com/coresig/signer/retry"
	"github.com/coresig/signer/store"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*SignerEngine, *bulletin.FakeNetwork, *chainclient.Fake) {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	selfAddr := chain.Address(pub.Address())
	var selfPoint chain.Point
	copy(selfPoint[:], pub)

	cycle := NewCycleContext(CycleContextParams{
		RewardCycle:        1,
		SignerID:           0,
		Mainnet:            true,
		NumKeys:            2,
		SignerAddressToID:  map[chain.Address]uint32{selfAddr: 0, "other": 1},
		SignerPublicKeys:   map[uint32]chain.Point{0: selfPoint},
		Coordinators:       []Candidate{{SignerID: 0, PublicKey: selfPoint}},
		CoordinatorTimeout: time.Minute,
		BackOffDuration:    time.Minute,
	})

	party, err := frost.Open("refsig", 0, 2, 1, 1)
	require.NoError(t, err)

	chainClient := chainclient.NewFake()
	net := bulletin.NewFakeNetwork(2)

	engine := &SignerEngine{
		Cycle:    cycle,
		Store:    store.NewLevelBlockStore(store.NewMemDB()),
		Chain:    chainClient,
		Bulletin: net.Slot(0),
		Party:    party,
		Gate: &BlockGate{Auditor: &TxAuditor{
			Chain:             chainClient,
			RetryPolicy:       retry.Policy{MaxRetries: 1},
			RewardCycle:       1,
			Mainnet:           true,
			SignerAddressToID: cycle.SignerAddressToID,
		}},
		RetryPolicy:   retry.Policy{MaxRetries: 1},
		FeeMicroUnits: 100,
		SelfAddress:   selfAddr,
		PrivateKey:    priv,
	}
	return engine, net, chainClient
}

// pump repeatedly feeds the engine every broadcast it has not yet seen,
// simulating this signer observing its own bulletin writes, until the
// bulletin goes quiet. Multi-phase rounds (nonce request, responses,
// share request, shares) run to completion through the engine's own
// packet handling this way.
func pump(t *testing.T, engine *SignerEngine, net *bulletin.FakeNetwork, cursor int) int {
	t.Helper()
	for {
		msgs, next := net.DrainBroadcasts(cursor)
		if len(msgs) == 0 {
			return cursor
		}
		cursor = next
		require.NoError(t, engine.HandleEvent(context.Background(), Event{Kind: EventPeerMessages, PeerMessages: msgs}))
	}
}

func runDkg(t *testing.T, engine *SignerEngine, net *bulletin.FakeNetwork, cursor int) int {
	t.Helper()
	engine.Cycle.Commands.PushBack(Command{Kind: CommandDkg})
	require.NoError(t, engine.HandleEvent(context.Background(), Event{Kind: EventNone}))
	require.Equal(t, StateOperationInProgress, engine.Cycle.State)
	cursor = pump(t, engine, net, cursor)
	_, hasAgg := engine.Party.Coordinator.GetAggregatePublicKey()
	require.True(t, hasAgg)
	require.Equal(t, StateIdle, engine.Cycle.State)
	return cursor
}

func TestEngineHappyPathSigning(t *testing.T) {
	ctx := context.Background()
	engine, net, _ := newTestEngine(t)

	cursor := runDkg(t, engine, net, 0)

	block := newTestBlock(t)
	require.NoError(t, engine.HandleEvent(ctx, Event{Kind: EventProposedBlocks, ProposedBlocks: []*chain.Block{block}}))

	hash := block.Header.SignerSignatureHash
	require.NoError(t, engine.HandleEvent(ctx, Event{
		Kind:               EventBlockValidationResponse,
		ValidationResponse: &ValidationResponse{Outcome: ValidationOk, Hash: hash},
	}))
	require.Equal(t, StateOperationInProgress, engine.Cycle.State)

	cursor = pump(t, engine, net, cursor)
	_ = cursor

	require.Equal(t, StateIdle, engine.Cycle.State)

	msgs, _ := net.DrainBroadcasts(0)
	var sawAccepted bool
	for _, m := range msgs {
		if m.Kind == bulletin.MsgBlockResponse && m.BlockResponse != nil && m.BlockResponse.Kind == bulletin.BlockAccepted {
			sawAccepted = true
			require.Equal(t, hash, m.BlockResponse.Hash)
		}
	}
	require.True(t, sawAccepted)

	_, err := engine.Store.Get(engine.Cycle.RewardCycle, hash)
	require.ErrorIs(t, err, store.ErrNotFound)
}

// TestEngineDuplicateSignCommandIsNoOp: a Sign command for a block whose
// signing round has already been entered is dropped without opening a new
// round or producing any outbound packet.
func TestEngineDuplicateSignCommandIsNoOp(t *testing.T) {
	ctx := context.Background()
	engine, net, _ := newTestEngine(t)

	block := newTestBlock(t)
	hash := block.Header.SignerSignatureHash
	bi := store.NewBlockInfo(block)
	bi.Valid = store.ValidityValid
	bi.MarkSignedOver()
	require.NoError(t, engine.Store.Put(engine.Cycle.RewardCycle, hash, bi))

	before, _ := net.DrainBroadcasts(0)
	engine.Cycle.Commands.PushBack(Command{Kind: CommandSign, Block: block})
	require.NoError(t, engine.HandleEvent(ctx, Event{Kind: EventNone}))
	after, _ := net.DrainBroadcasts(0)

	require.Equal(t, len(before), len(after))
	require.Equal(t, StateIdle, engine.Cycle.State)
}

func TestEngineMissingTransactionsRejection(t *testing.T) {
	ctx := context.Background()
	engine, net, chainClient := newTestEngine(t)
	cursor := runDkg(t, engine, net, 0)
	_ = cursor

	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	origin := chain.Address(pub.Address())
	engine.Cycle.SignerAddressToID[origin] = 7
	engine.Gate.Auditor.SignerAddressToID[origin] = 7

	var pt chain.Point
	copy(pt[:], pub)
	payload := chain.ContractCallPayload{
		ContractName: chain.SignersVotingContractName,
		FunctionName: chain.VoteForAggregatePublicKeyFunction,
		Args: chain.EncodeVoteForAggregatePublicKeyArgs(chain.VoteForAggregatePublicKeyArgs{
			SignerIndex: 7, Point: pt, Round: 0, RewardCycle: 1,
		}),
	}
	tx, err := chain.NewTransaction(chain.TxContractCall, pub.Hex(), 0, true, 10, payload)
	require.NoError(t, err)
	tx.Sign(priv)

	_, err = net.Slot(7).SendMessageWithRetry(ctx, bulletin.Message{Kind: bulletin.MsgTransactions, Transactions: []*chain.Transaction{tx}})
	require.NoError(t, err)

	block := newTestBlock(t) // does not include tx
	hash := block.Header.SignerSignatureHash
	require.NoError(t, engine.HandleEvent(ctx, Event{Kind: EventProposedBlocks, ProposedBlocks: []*chain.Block{block}}))
	require.NoError(t, engine.HandleEvent(ctx, Event{
		Kind:               EventBlockValidationResponse,
		ValidationResponse: &ValidationResponse{Outcome: ValidationOk, Hash: hash},
	}))

	bi, err := engine.Store.Get(engine.Cycle.RewardCycle, hash)
	require.NoError(t, err)
	require.Equal(t, store.ValidityInvalid, bi.Valid)

	msgs, _ := net.DrainBroadcasts(0)
	var sawRejection bool
	for _, m := range msgs {
		if m.Kind == bulletin.MsgBlockRejection && m.BlockRejection != nil && m.BlockRejection.Code == bulletin.RejectMissingTransactions {
			sawRejection = true
		}
	}
	require.True(t, sawRejection)
	_ = chainClient
}

// TestFiveSignerThresholdSigning runs five independently constructed
// engines (threshold 3 of 5) against one shared bulletin. The coordinator
// opens the round over the serialized block; every signer, coordinator
// included, derives its own vote from the nonce request; and each engine
// independently observes the threshold signature, broadcasts acceptance
// exactly once, and drops the block from its store.
func TestFiveSignerThresholdSigning(t *testing.T) {
	ctx := context.Background()
	const numSigners = 5

	privs := make([]crypto.PrivateKey, numSigners)
	addrs := make([]chain.Address, numSigners)
	addrToID := make(map[chain.Address]uint32, numSigners)
	pubKeys := make(map[uint32]chain.Point, numSigners)
	candidates := make([]Candidate, 0, numSigners)
	for i := 0; i < numSigners; i++ {
		priv, pub, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		privs[i] = priv
		addrs[i] = chain.Address(pub.Address())
		addrToID[addrs[i]] = uint32(i)
		var point chain.Point
		copy(point[:], pub)
		pubKeys[uint32(i)] = point
		candidates = append(candidates, Candidate{SignerID: uint32(i), PublicKey: point})
	}

	chainClient := chainclient.NewFake()
	chainClient.RewardCycle = 1
	net := bulletin.NewFakeNetwork(numSigners)

	engines := make([]*SignerEngine, numSigners)
	var aggregate chain.Point
	for i := 0; i < numSigners; i++ {
		party, err := frost.Open("refsig", uint32(i), numSigners, 3, 4)
		require.NoError(t, err)
		point := party.SignerParty.PublicKeys().Signer[uint32(i)]
		if i == 0 || bytes.Compare(point[:], aggregate[:]) < 0 {
			aggregate = point
		}

		cycle := NewCycleContext(CycleContextParams{
			RewardCycle:        1,
			SignerID:           uint32(i),
			Mainnet:            true,
			NumKeys:            numSigners,
			SignerAddressToID:  addrToID,
			SignerPublicKeys:   pubKeys,
			Coordinators:       candidates,
			CoordinatorTimeout: time.Minute,
		})
		engines[i] = &SignerEngine{
			Cycle:    cycle,
			Store:    store.NewLevelBlockStore(store.NewMemDB()),
			Chain:    chainClient,
			Bulletin: net.Slot(uint32(i)),
			Party:    party,
			Gate: &BlockGate{Auditor: &TxAuditor{
				Chain:             chainClient,
				RetryPolicy:       retry.Policy{MaxRetries: 1},
				RewardCycle:       1,
				Mainnet:           true,
				SignerAddressToID: addrToID,
			}},
			RetryPolicy: retry.Policy{MaxRetries: 1},
			SelfAddress: addrs[i],
			PrivateKey:  privs[i],
		}
	}

	// The reference scheme's aggregate is the lowest key-share commitment;
	// publishing it on chain lets every engine's DKG update pass adopt it.
	chainClient.Aggregates[1] = aggregate
	for _, e := range engines {
		require.NoError(t, e.HandleEvent(ctx, Event{Kind: EventStatusCheck}))
	}

	block := newTestBlock(t)
	hash := block.Header.SignerSignatureHash
	for _, e := range engines {
		require.NoError(t, e.HandleEvent(ctx, Event{Kind: EventProposedBlocks, ProposedBlocks: []*chain.Block{block}}))
		require.NoError(t, e.HandleEvent(ctx, Event{
			Kind:               EventBlockValidationResponse,
			ValidationResponse: &ValidationResponse{Outcome: ValidationOk, Hash: hash},
		}))
	}
	require.Equal(t, StateOperationInProgress, engines[0].Cycle.State)

	// Round-robin delivery until no engine has unseen bulletin traffic.
	cursors := make([]int, numSigners)
	for quiet := false; !quiet; {
		quiet = true
		for i, e := range engines {
			msgs, next := net.DrainBroadcasts(cursors[i])
			if len(msgs) == 0 {
				continue
			}
			quiet = false
			cursors[i] = next
			require.NoError(t, e.HandleEvent(ctx, Event{Kind: EventPeerMessages, PeerMessages: msgs}))
		}
	}

	msgs, _ := net.DrainBroadcasts(0)
	accepted := 0
	for _, m := range msgs {
		if m.Kind == bulletin.MsgBlockResponse && m.BlockResponse != nil && m.BlockResponse.Kind == bulletin.BlockAccepted {
			accepted++
			require.Equal(t, hash, m.BlockResponse.Hash)
		}
	}
	require.Equal(t, numSigners, accepted)

	for _, e := range engines {
		require.Equal(t, StateIdle, e.Cycle.State)
		_, err := e.Store.Get(e.Cycle.RewardCycle, hash)
		require.ErrorIs(t, err, store.ErrNotFound)
	}
}

// TestEngineDkgVoteDeDup runs the DKG result handler twice for the same
// (point, round) pair: the second pass must find the vote already on the
// bulletin and neither resubmit to the mempool nor rewrite the slot.
func TestEngineDkgVoteDeDup(t *testing.T) {
	ctx := context.Background()
	engine, net, chainClient := newTestEngine(t)

	cursor := runDkg(t, engine, net, 0)
	_ = cursor
	require.Len(t, chainClient.SubmittedTransactions, 1)

	point, hasAgg := engine.Party.Coordinator.GetAggregatePublicKey()
	require.True(t, hasAgg)

	before, _ := net.DrainBroadcasts(0)
	engine.handleOperationResults(ctx, []frost.OperationResult{{Kind: frost.ResultDkg, DkgPoint: point}})
	after, _ := net.DrainBroadcasts(0)

	require.Len(t, chainClient.SubmittedTransactions, 1)
	require.Equal(t, len(before), len(after))
}

// TestEngineBackOffGatesDkg checks that enough inbound NACKs
// engage the back-off, the next update_dkg pass refuses to queue a DKG
// round, and once the window elapses the reset rule clears the state and
// DKG proceeds.
func TestEngineBackOffGatesDkg(t *testing.T) {
	ctx := context.Background()
	engine, net, _ := newTestEngine(t)

	threshold := uint32(1)
	engine.Cycle.Governor = NewStaleViewGovernor(&threshold, 50*time.Millisecond)

	require.NoError(t, engine.HandleEvent(ctx, Event{Kind: EventPeerMessages, PeerMessages: []bulletin.Message{
		{Kind: bulletin.MsgNack, Nack: &bulletin.Nack{
			Sender: 1, Target: 0,
			Metadata: chain.CoordinatorMetadata{PoxConsensusHash: "0x99", BurnBlockHeight: 100},
		}},
	}}))
	require.True(t, engine.Cycle.Governor.BackOffActive())

	require.NoError(t, engine.HandleEvent(ctx, Event{Kind: EventStatusCheck}))
	require.Equal(t, 0, engine.Cycle.Commands.Len())
	require.Equal(t, StateIdle, engine.Cycle.State)

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, engine.HandleEvent(ctx, Event{Kind: EventStatusCheck}))
	require.Equal(t, StateOperationInProgress, engine.Cycle.State)

	msgs, _ := net.DrainBroadcasts(0)
	require.NotEmpty(t, msgs)
}

// TestEngineForwardsResultsToSubscriber checks that completed operation
// batches reach the Results channel after the engine's own handling.
func TestEngineForwardsResultsToSubscriber(t *testing.T) {
	engine, net, _ := newTestEngine(t)

	results := make(chan []frost.OperationResult, 1)
	engine.Results = results
	runDkg(t, engine, net, 0)

	select {
	case batch := <-results:
		require.Len(t, batch, 1)
		require.Equal(t, frost.ResultDkg, batch[0].Kind)
	default:
		t.Fatal("no operation-result batch forwarded")
	}
}

// TestEngineNonceRequestLifecycle exercises the three-way
// NonceRequest branch: an unseen block is cached and submitted for
// validation (stashing the request), and once validation completes the
// stashed request resumes into a vote, clearing PendingNonceRequest.
func TestEngineNonceRequestLifecycle(t *testing.T) {
	ctx := context.Background()
	engine, _, chainClient := newTestEngine(t)

	block := newTestBlock(t)
	hash := block.Header.SignerSignatureHash
	payload, err := json.Marshal(block)
	require.NoError(t, err)

	pe := &bulletin.PacketEnvelope{
		Packet:   frost.Packet{Msg: frost.Message{Kind: frost.MsgNonceRequest, Payload: payload}},
		SenderID: 0,
	}
	signPacketEnvelope(engine.PrivateKey, pe)

	require.NoError(t, engine.HandleEvent(ctx, Event{Kind: EventPeerMessages, PeerMessages: []bulletin.Message{
		{Kind: bulletin.MsgPacket, Packet: pe},
	}}))
	require.Len(t, chainClient.SubmittedBlocks, 1)

	bi, err := engine.Store.Get(engine.Cycle.RewardCycle, hash)
	require.NoError(t, err)
	require.NotNil(t, bi.PendingNonceRequest)
	require.Nil(t, bi.Vote)

	require.NoError(t, engine.HandleEvent(ctx, Event{
		Kind:               EventBlockValidationResponse,
		ValidationResponse: &ValidationResponse{Outcome: ValidationOk, Hash: hash},
	}))

	bi, err = engine.Store.Get(engine.Cycle.RewardCycle, hash)
	require.NoError(t, err)
	require.Nil(t, bi.PendingNonceRequest)
	require.NotNil(t, bi.Vote)
	require.True(t, bi.Vote.IsYes())
}

// TestEngineNonceRequestStashesUntilValidated covers the middle branch: a
// NonceRequest for a block already known but not yet validated is stashed
// rather than resubmitted or resolved.
func TestEngineNonceRequestStashesUntilValidated(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t)

	block := newTestBlock(t)
	hash := block.Header.SignerSignatureHash
	require.NoError(t, engine.HandleEvent(ctx, Event{Kind: EventProposedBlocks, ProposedBlocks: []*chain.Block{block}}))

	payload, err := json.Marshal(block)
	require.NoError(t, err)
	pe := &bulletin.PacketEnvelope{
		Packet:   frost.Packet{Msg: frost.Message{Kind: frost.MsgNonceRequest, Payload: payload}},
		SenderID: 0,
	}
	signPacketEnvelope(engine.PrivateKey, pe)

	require.NoError(t, engine.HandleEvent(ctx, Event{Kind: EventPeerMessages, PeerMessages: []bulletin.Message{
		{Kind: bulletin.MsgPacket, Packet: pe},
	}}))

	bi, err := engine.Store.Get(engine.Cycle.RewardCycle, hash)
	require.NoError(t, err)
	require.Equal(t, store.ValidityUnknown, bi.Valid)
	require.NotNil(t, bi.PendingNonceRequest)
	require.Nil(t, bi.Vote)
}
