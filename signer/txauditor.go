package signer

import (
	"context"
	"encoding/json"

	"github.com/coresig/signer/chain"
	"github.com/coresig/signer/chainclient"
	"github.com/coresig/signer/crypto"
	"github.com/coresig/signer/retry"
)

type pointOk struct{ ok bool }

type lastRoundOk struct {
	round uint64
	ok    bool
}

// TxAuditor admits or rejects a SignerTransaction harvested from the
// bulletin against the nine admission criteria.
type TxAuditor struct {
	Chain                 chainclient.ChainClient
	RetryPolicy           retry.Policy
	RewardCycle           uint64
	Mainnet               bool
	SignerAddressToID     map[chain.Address]uint32
	RewardCycleArgEnabled bool // on-chain reward-cycle consistency check, off unless opted in
}

// Admit reports whether tx passes every admission criterion. A chain-RPC
// failure in steps 2, 7-9 filters the transaction rather than propagating
// an error.
func (a *TxAuditor) Admit(ctx context.Context, tx *chain.Transaction) bool {
	// 1. Origin address is a registered signer in this cycle.
	pub, err := crypto.PubKeyFromHex(tx.Origin)
	if err != nil {
		return false
	}
	originAddr := chain.Address(pub.Address())
	originSignerID, ok := a.SignerAddressToID[originAddr]
	if !ok {
		return false
	}

	// 2. origin_nonce >= account_nonce_on_chain(origin).
	accountNonce, err := retry.DoValue(ctx, a.RetryPolicy, func() (uint64, error) {
		return a.Chain.GetAccountNonce(ctx, originAddr)
	})
	if err != nil {
		return false
	}
	if tx.OriginNonce < accountNonce {
		return false
	}

	// 3. Mainnet/testnet flag matches this signer.
	if tx.Mainnet != a.Mainnet {
		return false
	}

	// 4. Payload is a contract call to signers-voting's vote function.
	if tx.Type != chain.TxContractCall {
		return false
	}
	var payload chain.ContractCallPayload
	if err := json.Unmarshal(tx.Payload, &payload); err != nil {
		return false
	}
	if !payload.IsVoteForAggregatePublicKeyCall() {
		return false
	}

	// 5. Arguments parse as (signer_index, compressed_point, round[, reward_cycle]).
	args, err := chain.ParseVoteForAggregatePublicKeyArgs(payload.Args)
	if err != nil {
		return false
	}
	if a.RewardCycleArgEnabled && args.RewardCycle != a.RewardCycle {
		return false
	}

	// 6. signer_index == origin_signer_id.
	if args.SignerIndex != uint64(originSignerID) {
		return false
	}

	// 7. No prior vote exists on chain for (round, reward_cycle, origin_address).
	voteResult, err := retry.DoValue(ctx, a.RetryPolicy, func() (pointOk, error) {
		_, ok, err := a.Chain.GetVoteForAggregatePublicKey(ctx, args.Round, a.RewardCycle, originAddr)
		return pointOk{ok: ok}, err
	})
	if err != nil {
		return false
	}
	if voteResult.ok {
		return false
	}

	// 8. If an aggregate key and last_round exist, round <= last_round.
	aggResult, err := retry.DoValue(ctx, a.RetryPolicy, func() (pointOk, error) {
		_, ok, err := a.Chain.GetAggregatePublicKey(ctx, a.RewardCycle)
		return pointOk{ok: ok}, err
	})
	if err != nil {
		return false
	}
	lastRoundResult, err := retry.DoValue(ctx, a.RetryPolicy, func() (lastRoundOk, error) {
		round, ok, err := a.Chain.GetLastRound(ctx, a.RewardCycle)
		return lastRoundOk{round: round, ok: ok}, err
	})
	if err != nil {
		return false
	}
	hasAggregate, hasLastRound := aggResult.ok, lastRoundResult.ok
	if hasAggregate && hasLastRound && args.Round > lastRoundResult.round {
		return false
	}

	// 9. round <= last_round + 2 (anti-spam), applied unconditionally: an
	// absent last_round (no DKG round recorded yet this cycle) is treated
	// as 0, not as "no bound."
	var lastRound uint64
	if hasLastRound {
		lastRound = lastRoundResult.round
	}
	if args.Round > lastRound+2 {
		return false
	}

	return true
}
