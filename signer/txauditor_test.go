package signer

import (
	"context"
	"testing"

	"github.com/coresig/signer/chain"
	"github.com/coresig/signer/chainclient"
	"github.com/coresig/signer/crypto"
	"github.com/coresig/signer/retry"
	"github.com/stretchr/testify/require"
)

func newVoteTx(t *testing.T, origin crypto.PrivateKey, pub crypto.PublicKey, signerIndex, nonce, round, cycle uint64, mainnet bool) *chain.Transaction {
	t.Helper()
	var pt chain.Point
	copy(pt[:], pub)
	payload := chain.ContractCallPayload{
		ContractName: chain.SignersVotingContractName,
		FunctionName: chain.VoteForAggregatePublicKeyFunction,
		Args: chain.EncodeVoteForAggregatePublicKeyArgs(chain.VoteForAggregatePublicKeyArgs{
			SignerIndex: signerIndex,
			Point:       pt,
			Round:       round,
			RewardCycle: cycle,
		}),
	}
	tx, err := chain.NewTransaction(chain.TxContractCall, pub.Hex(), nonce, mainnet, 100, payload)
	require.NoError(t, err)
	tx.Sign(origin)
	return tx
}

func newAuditor(t *testing.T, fake *chainclient.Fake, addrToID map[chain.Address]uint32) *TxAuditor {
	t.Helper()
	return &TxAuditor{
		Chain:             fake,
		RetryPolicy:       retry.Policy{MaxRetries: 1},
		RewardCycle:       5,
		Mainnet:           true,
		SignerAddressToID: addrToID,
	}
}

func TestTxAuditorAdmitsValidVote(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	addr := chain.Address(pub.Address())

	fake := chainclient.NewFake()
	auditor := newAuditor(t, fake, map[chain.Address]uint32{addr: 2})

	tx := newVoteTx(t, priv, pub, 2, 0, 1, 5, true)
	require.True(t, auditor.Admit(context.Background(), tx))
}

func TestTxAuditorRejectsUnregisteredOrigin(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	fake := chainclient.NewFake()
	auditor := newAuditor(t, fake, map[chain.Address]uint32{})

	tx := newVoteTx(t, priv, pub, 0, 0, 1, 5, true)
	require.False(t, auditor.Admit(context.Background(), tx))
}

func TestTxAuditorRejectsStaleNonce(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	addr := chain.Address(pub.Address())

	fake := chainclient.NewFake()
	fake.Nonces[addr] = 5
	auditor := newAuditor(t, fake, map[chain.Address]uint32{addr: 0})

	tx := newVoteTx(t, priv, pub, 0, 2, 1, 5, true)
	require.False(t, auditor.Admit(context.Background(), tx))
}

func TestTxAuditorRejectsNetworkMismatch(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	addr := chain.Address(pub.Address())

	fake := chainclient.NewFake()
	auditor := newAuditor(t, fake, map[chain.Address]uint32{addr: 0})

	tx := newVoteTx(t, priv, pub, 0, 0, 1, 5, false)
	require.False(t, auditor.Admit(context.Background(), tx))
}

func TestTxAuditorRejectsSignerIndexMismatch(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	addr := chain.Address(pub.Address())

	fake := chainclient.NewFake()
	auditor := newAuditor(t, fake, map[chain.Address]uint32{addr: 3})

	tx := newVoteTx(t, priv, pub, 7, 0, 1, 5, true)
	require.False(t, auditor.Admit(context.Background(), tx))
}

func TestTxAuditorRejectsPriorVote(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	addr := chain.Address(pub.Address())

	fake := chainclient.NewFake()
	fake.Votes[string(addr)+"/1/5"] = chain.Point{}
	auditor := newAuditor(t, fake, map[chain.Address]uint32{addr: 0})

	tx := newVoteTx(t, priv, pub, 0, 0, 1, 5, true)
	require.False(t, auditor.Admit(context.Background(), tx))
}

func TestTxAuditorRejectsRoundAheadOfLastRound(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	addr := chain.Address(pub.Address())

	fake := chainclient.NewFake()
	fake.Aggregates[5] = chain.Point{0x02}
	fake.LastRounds[5] = 1
	auditor := newAuditor(t, fake, map[chain.Address]uint32{addr: 0})

	tx := newVoteTx(t, priv, pub, 0, 0, 2, 5, true)
	require.False(t, auditor.Admit(context.Background(), tx))
}

func TestTxAuditorRejectsFarFutureRound(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	addr := chain.Address(pub.Address())

	// No aggregate key or last_round recorded yet (common at cycle start):
	// the anti-spam bound still applies, treating the absent last_round as
	// 0, so a far-future round is rejected rather than admitted by default.
	fake := chainclient.NewFake()
	auditor := newAuditor(t, fake, map[chain.Address]uint32{addr: 0})
	tx := newVoteTx(t, priv, pub, 0, 0, 10, 5, true)
	require.False(t, auditor.Admit(context.Background(), tx))
}

func TestTxAuditorAdmitsRoundWithinAntiSpamBoundWhenNoLastRound(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	addr := chain.Address(pub.Address())

	fake := chainclient.NewFake()
	auditor := newAuditor(t, fake, map[chain.Address]uint32{addr: 0})
	tx := newVoteTx(t, priv, pub, 0, 0, 2, 5, true)
	require.True(t, auditor.Admit(context.Background(), tx))
}
