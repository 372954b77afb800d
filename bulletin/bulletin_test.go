package bulletin

import (
	"context"
	"testing"

	"github.com/coresig/signer/chain"
	"github.com/stretchr/testify/require"
)

func TestFakeNetworkTransactionsVisibleAcrossSlots(t *testing.T) {
	ctx := context.Background()
	net := NewFakeNetwork(3)
	signer0 := net.Slot(0)
	signer1 := net.Slot(1)

	tx := &chain.Transaction{ID: "tx-1"}
	_, err := signer0.SendMessageWithRetry(ctx, Message{Kind: MsgTransactions, Transactions: []*chain.Transaction{tx}})
	require.NoError(t, err)

	txs, err := signer1.GetSignerTransactionsWithRetry(ctx, []uint32{0})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, "tx-1", txs[0].ID)
}

func TestFakeNetworkBroadcastDrain(t *testing.T) {
	ctx := context.Background()
	net := NewFakeNetwork(2)
	signer0 := net.Slot(0)

	_, err := signer0.SendMessageWithRetry(ctx, Message{Kind: MsgNack, Nack: &Nack{Sender: 0, Target: 1}})
	require.NoError(t, err)

	msgs, cursor := net.DrainBroadcasts(0)
	require.Len(t, msgs, 1)
	require.Equal(t, MsgNack, msgs[0].Kind)

	msgs, cursor = net.DrainBroadcasts(cursor)
	require.Empty(t, msgs)
}

func TestFakeSlotIdentity(t *testing.T) {
	ctx := context.Background()
	net := NewFakeNetwork(5)
	s := net.Slot(3)
	slot, err := s.GetSignerSlotID(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(3), slot)

	n, err := s.GetSignerSet(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(5), n)
}
