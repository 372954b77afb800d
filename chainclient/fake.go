package chainclient

import (
	"context"
	"sync"

	"github.com/coresig/signer/chain"
)

// Fake is an in-memory ChainClient test double used by signer-package
// tests to drive block-validation and DKG scenarios deterministically.
type Fake struct {
	mu sync.Mutex

	RewardCycle uint64
	Aggregates  map[uint64]chain.Point
	LastRounds  map[uint64]uint64
	Votes       map[string]chain.Point // "origin/round/cycle" -> point
	Nonces      map[chain.Address]uint64
	Epoch       chain.EpochId

	SubmittedBlocks       []*chain.Block
	SubmittedTransactions []*chain.Transaction
}

// NewFake creates an empty Fake ChainClient.
func NewFake() *Fake {
	return &Fake{
		Aggregates: make(map[uint64]chain.Point),
		LastRounds: make(map[uint64]uint64),
		Votes:      make(map[string]chain.Point),
		Nonces:     make(map[chain.Address]uint64),
	}
}

func (f *Fake) GetCurrentRewardCycle(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.RewardCycle, nil
}

func (f *Fake) GetAggregatePublicKey(ctx context.Context, cycle uint64) (chain.Point, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Aggregates[cycle]
	return p, ok, nil
}

func (f *Fake) GetLastRound(ctx context.Context, cycle uint64) (uint64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.LastRounds[cycle]
	return r, ok, nil
}

func voteKey(round, cycle uint64, origin chain.Address) string {
	return string(origin) + "/" + itoa(round) + "/" + itoa(cycle)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func (f *Fake) GetVoteForAggregatePublicKey(ctx context.Context, round, cycle uint64, origin chain.Address) (chain.Point, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Votes[voteKey(round, cycle, origin)]
	return p, ok, nil
}

func (f *Fake) GetAccountNonce(ctx context.Context, address chain.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Nonces[address], nil
}

func (f *Fake) GetNodeEpoch(ctx context.Context) (chain.EpochId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Epoch, nil
}

func (f *Fake) SubmitBlockForValidation(ctx context.Context, block *chain.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SubmittedBlocks = append(f.SubmittedBlocks, block)
	return nil
}

func (f *Fake) SubmitTransaction(ctx context.Context, tx *chain.Transaction) (chain.TxId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SubmittedTransactions = append(f.SubmittedTransactions, tx)
	return chain.TxId(tx.Hash()), nil
}

func (f *Fake) BuildVoteForAggregatePublicKey(ctx context.Context, slot uint32, dkgID uint64, point chain.Point, feeMicroUnits *uint64) (*chain.Transaction, error) {
	payload := chain.ContractCallPayload{
		ContractName: chain.SignersVotingContractName,
		FunctionName: chain.VoteForAggregatePublicKeyFunction,
		Args: chain.EncodeVoteForAggregatePublicKeyArgs(chain.VoteForAggregatePublicKeyArgs{
			SignerIndex: uint64(slot),
			Point:       point,
			Round:       dkgID,
		}),
	}
	fee := uint64(0)
	if feeMicroUnits != nil {
		fee = *feeMicroUnits
	}
	tx, err := chain.NewTransaction(chain.TxContractCall, "", 0, false, fee, payload)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

var _ ChainClient = (*Fake)(nil)
