package signer

import (
	"testing"
	"time"

	"github.com/coresig/signer/bulletin"
	"github.com/coresig/signer/chain"
	"github.com/stretchr/testify/require"
)

func metadata(hash string, height uint64) chain.CoordinatorMetadata {
	return chain.CoordinatorMetadata{PoxConsensusHash: hash, BurnBlockHeight: height}
}

func TestStaleViewNoNackWhenLocalIsStale(t *testing.T) {
	threshold := uint32(3)
	g := NewStaleViewGovernor(&threshold, time.Minute)

	local := metadata("0x00", 100)
	for _, sender := range []uint32{1, 2, 3} {
		nack := g.ObservePacket(0, local, metadata("0x11", 101), sender)
		require.Nil(t, nack)
	}
}

func TestStaleViewEmitsNackAndClearsSentOnViewChange(t *testing.T) {
	threshold := uint32(3)
	g := NewStaleViewGovernor(&threshold, time.Minute)

	local := metadata("0x00", 100)
	sent := 0
	for _, sender := range []uint32{1, 2, 3} {
		nack := g.ObservePacket(0, local, metadata("0x22", 99), sender)
		require.NotNil(t, nack)
		require.Equal(t, sender, nack.Target)
		sent++
	}
	require.Equal(t, 3, sent)

	// Duplicate NACK for same (local, target) is suppressed.
	require.Nil(t, g.ObservePacket(0, local, metadata("0x22", 99), 1))

	// Local view advances: previous `sent` entries become obsolete.
	newLocal := metadata("0x33", 105)
	nack := g.ObservePacket(0, newLocal, metadata("0x22", 99), 1)
	require.NotNil(t, nack)
}

func TestInboundNackThresholdTriggersBackOff(t *testing.T) {
	threshold := uint32(3)
	g := NewStaleViewGovernor(&threshold, 50*time.Millisecond)
	local := metadata("0x00", 99)

	for _, sender := range []uint32{1, 2} {
		g.ObserveNack(bulletin.Nack{Sender: sender, Target: 0, Metadata: metadata("0x99", 100)}, 0, local)
		require.False(t, g.BackOffActive())
	}
	g.ObserveNack(bulletin.Nack{Sender: 3, Target: 0, Metadata: metadata("0x99", 100)}, 0, local)
	require.True(t, g.BackOffActive())

	time.Sleep(60 * time.Millisecond)
	require.False(t, g.BackOffActive())

	g.MaybeReset()
	require.False(t, g.BackOffActive())
}

func TestNackIgnoredWhenNotTargetingSelfOrNotAdvanced(t *testing.T) {
	threshold := uint32(1)
	g := NewStaleViewGovernor(&threshold, time.Minute)
	local := metadata("0x00", 100)

	g.ObserveNack(bulletin.Nack{Sender: 1, Target: 5, Metadata: metadata("0x99", 200)}, 0, local)
	require.False(t, g.BackOffActive())

	g.ObserveNack(bulletin.Nack{Sender: 1, Target: 0, Metadata: metadata("0x99", 50)}, 0, local)
	require.False(t, g.BackOffActive())
}
