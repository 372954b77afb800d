package bulletin

import (
	"context"
	"sync"

	"github.com/coresig/signer/chain"
)

// FakeNetwork is a shared in-memory bulletin used by multi-signer tests:
// every Fake bound to the same FakeNetwork sees the same broadcast log and
// per-signer transaction slots, the way real signers share one bulletin
// service.
type FakeNetwork struct {
	mu sync.Mutex

	numSigners uint32
	broadcast  []Message
	signerTxs  map[uint32][]*chain.Transaction
}

// NewFakeNetwork creates a shared bulletin test double for numSigners
// participants.
func NewFakeNetwork(numSigners uint32) *FakeNetwork {
	return &FakeNetwork{numSigners: numSigners, signerTxs: make(map[uint32][]*chain.Transaction)}
}

// Slot returns a Bulletin bound to slotID, writing into and reading from
// this shared network.
func (n *FakeNetwork) Slot(slotID uint32) *Fake {
	return &Fake{net: n, slotID: slotID}
}

// DrainBroadcasts returns every broadcast message recorded since cursor,
// and the new cursor position, letting a test simulate each signer's
// poll loop independently.
func (n *FakeNetwork) DrainBroadcasts(cursor int) ([]Message, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if cursor >= len(n.broadcast) {
		return nil, cursor
	}
	out := make([]Message, len(n.broadcast)-cursor)
	copy(out, n.broadcast[cursor:])
	return out, len(n.broadcast)
}

// Fake is a Bulletin bound to one signer's slot on a FakeNetwork.
type Fake struct {
	net    *FakeNetwork
	slotID uint32
}

func (f *Fake) SendMessageWithRetry(ctx context.Context, msg Message) (Ack, error) {
	f.net.mu.Lock()
	defer f.net.mu.Unlock()
	if msg.Kind == MsgTransactions {
		f.net.signerTxs[f.slotID] = msg.Transactions
	}
	f.net.broadcast = append(f.net.broadcast, msg)
	return Ack{OK: true}, nil
}

func (f *Fake) GetSignerTransactionsWithRetry(ctx context.Context, signerIDs []uint32) ([]*chain.Transaction, error) {
	f.net.mu.Lock()
	defer f.net.mu.Unlock()
	var out []*chain.Transaction
	for _, id := range signerIDs {
		out = append(out, f.net.signerTxs[id]...)
	}
	return out, nil
}

func (f *Fake) GetSignerSet(ctx context.Context) (uint32, error) {
	return f.net.numSigners, nil
}

func (f *Fake) GetSignerSlotID(ctx context.Context) (uint32, error) {
	return f.slotID, nil
}

var _ Bulletin = (*Fake)(nil)
