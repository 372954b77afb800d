package signer

import (
	"sync"
	"time"

	"github.com/coresig/signer/bulletin"
	"github.com/coresig/signer/chain"
)

// NackRegistry tracks which targets this signer has NACK'd under its
// current chain view, and which senders have NACK'd this signer under
// each view they have reported.
type NackRegistry struct {
	received map[chain.CoordinatorMetadata]map[uint32]struct{}
	sent     map[chain.CoordinatorMetadata]map[uint32]struct{}
}

func newNackRegistry() *NackRegistry {
	return &NackRegistry{
		received: make(map[chain.CoordinatorMetadata]map[uint32]struct{}),
		sent:     make(map[chain.CoordinatorMetadata]map[uint32]struct{}),
	}
}

// StaleViewGovernor reconciles this signer's chain view against inbound
// packet senders, emitting NACKs on mismatch and enforcing a cooperative
// back-off once enough peers NACK this signer's own view.
type StaleViewGovernor struct {
	mu sync.Mutex

	registry *NackRegistry

	nackThreshold *uint32
	backOffDur    time.Duration

	backOffUntil      *time.Time
	applyBackOffDelay bool

	now func() time.Time
}

// NewStaleViewGovernor builds a governor. nackThreshold is nil when no
// stale-node NACK policy is configured, in which case Nack processing is
// a no-op and back-off never engages.
func NewStaleViewGovernor(nackThreshold *uint32, backOffDur time.Duration) *StaleViewGovernor {
	return &StaleViewGovernor{
		registry:      newNackRegistry(),
		nackThreshold: nackThreshold,
		backOffDur:    backOffDur,
		now:           time.Now,
	}
}

func (g *StaleViewGovernor) clock() time.Time {
	if g.now != nil {
		return g.now()
	}
	return time.Now()
}

// ObservePacket compares the local chain view against an inbound packet
// sender's. It returns a non-nil Nack when one should be sent to senderID,
// carrying local. selfID identifies this signer as the Nack's sender.
func (g *StaleViewGovernor) ObservePacket(selfID uint32, local, sender chain.CoordinatorMetadata, senderID uint32) *bulletin.Nack {
	if g.nackThreshold == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if local.PoxConsensusHash == sender.PoxConsensusHash {
		return nil
	}
	if local.BurnBlockHeight < sender.BurnBlockHeight {
		// Local view is stale; do not emit a NACK.
		return nil
	}

	for k := range g.registry.sent {
		if !k.Equal(local) {
			g.registry.sent = make(map[chain.CoordinatorMetadata]map[uint32]struct{})
			break
		}
	}

	targets, ok := g.registry.sent[local]
	if !ok {
		targets = make(map[uint32]struct{})
		g.registry.sent[local] = targets
	}
	if _, already := targets[senderID]; already {
		return nil
	}
	targets[senderID] = struct{}{}

	return &bulletin.Nack{Sender: selfID, Target: senderID, Metadata: local}
}

// ObserveNack handles an inbound NACK, given selfID and the local view.
// It engages back-off once enough distinct senders have reported a view
// more advanced than local's.
func (g *StaleViewGovernor) ObserveNack(nack bulletin.Nack, selfID uint32, local chain.CoordinatorMetadata) {
	if g.nackThreshold == nil {
		return
	}
	if nack.Target != selfID {
		return
	}
	if nack.Metadata.BurnBlockHeight <= local.BurnBlockHeight {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	senders, ok := g.registry.received[nack.Metadata]
	if !ok {
		senders = make(map[uint32]struct{})
		g.registry.received[nack.Metadata] = senders
	}
	senders[nack.Sender] = struct{}{}

	if uint32(len(senders)) >= *g.nackThreshold {
		g.applyBackOffDelay = true
		until := g.clock().Add(g.backOffDur)
		g.backOffUntil = &until
	}
}

// BackOffActive reports whether the engine must refuse to initiate new
// DKG or Sign rounds as coordinator.
func (g *StaleViewGovernor) BackOffActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.applyBackOffDelay || g.backOffUntil == nil {
		return false
	}
	return g.clock().Before(*g.backOffUntil)
}

// MaybeReset clears expired back-off state, invoked at the completion of
// validation handling and at the completion of a DKG update pass.
func (g *StaleViewGovernor) MaybeReset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.applyBackOffDelay || g.backOffUntil == nil {
		return
	}
	if g.clock().Before(*g.backOffUntil) {
		return
	}
	g.backOffUntil = nil
	g.applyBackOffDelay = false
	g.registry.received = make(map[chain.CoordinatorMetadata]map[uint32]struct{})
}
