package signer

import (
	"time"

	"github.com/coresig/signer/chain"
)

// CycleContext holds the per-reward-cycle runtime state the engine
// operates over. The NACK registry and back-off state live in Governor
// rather than duplicated here.
type CycleContext struct {
	RewardCycle uint64
	SignerID    uint32
	Mainnet     bool

	NumSigners   uint32
	NumKeys      uint32
	Threshold    uint32
	DKGThreshold uint32

	SignerAddressToID map[chain.Address]uint32

	// SignerPublicKeys is the cycle's full signer roster keyed by signer
	// id: the set a packet's envelope signature must verify against before
	// the inner message is trusted.
	SignerPublicKeys map[uint32]chain.Point

	CoordinatorSelector *CoordinatorSelector
	Governor            *StaleViewGovernor

	State State

	Commands CommandQueue
}

// CycleContextParams configures a new CycleContext.
type CycleContextParams struct {
	RewardCycle          uint64
	SignerID             uint32
	Mainnet              bool
	NumKeys              uint32
	SignerAddressToID    map[chain.Address]uint32
	SignerPublicKeys     map[uint32]chain.Point
	Coordinators         []Candidate
	CoordinatorTimeout   time.Duration
	NackThresholdPercent *uint32       // 0..=100, matches stale_node_nack_policy
	BackOffDuration      time.Duration // policy.back_off_duration_ms
}

// NewCycleContext computes the derived threshold fields and wires up the
// coordinator selector and stale-view governor.
func NewCycleContext(p CycleContextParams) *CycleContext {
	numSigners := uint32(len(p.SignerAddressToID))
	threshold := p.NumKeys * 7 / 10
	dkgThreshold := p.NumKeys * 9 / 10

	var nackThreshold *uint32
	if p.NackThresholdPercent != nil {
		t := numSigners * *p.NackThresholdPercent / 100
		nackThreshold = &t
	}

	return &CycleContext{
		RewardCycle:         p.RewardCycle,
		SignerID:            p.SignerID,
		Mainnet:             p.Mainnet,
		NumSigners:          numSigners,
		NumKeys:             p.NumKeys,
		Threshold:           threshold,
		DKGThreshold:        dkgThreshold,
		SignerAddressToID:   p.SignerAddressToID,
		SignerPublicKeys:    p.SignerPublicKeys,
		CoordinatorSelector: NewCoordinatorSelector(p.Coordinators, p.CoordinatorTimeout),
		Governor:            NewStaleViewGovernor(nackThreshold, p.BackOffDuration),
		State:               StateIdle,
	}
}

// IsCoordinator reports whether this signer is currently the coordinator.
func (c *CycleContext) IsCoordinator() bool {
	return c.CoordinatorSelector.IsCoordinator(c.SignerID)
}
