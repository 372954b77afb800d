// Package chain holds the wire types shared with the external chain node:
// blocks, transactions, and the small value types the signer RPC contract
// exchanges.
package chain

import (
	"encoding/hex"
	"fmt"
)

// Point is a compressed secp256k1 curve point: an aggregate public key, a
// DKG result, or a per-signer key share.
type Point [33]byte

// Hex returns the compressed-point hex encoding.
func (p Point) Hex() string { return hex.EncodeToString(p[:]) }

// PointFromHex decodes a 33-byte compressed point.
func PointFromHex(s string) (Point, error) {
	var p Point
	b, err := hex.DecodeString(s)
	if err != nil {
		return p, err
	}
	if len(b) != len(p) {
		return p, fmt.Errorf("point must be 33 compressed bytes, got %d", len(b))
	}
	copy(p[:], b)
	return p, nil
}

// Address identifies a signer's on-chain account, derived from its public
// key the same way a miner or chain node would compute it.
type Address string

// EpochId distinguishes consensus-rule eras; only the pre/post Nakamoto
// split matters to this signer.
type EpochId uint32

const (
	EpochPreNakamoto  EpochId = 0
	EpochNakamoto     EpochId = 1
	EpochPostNakamoto EpochId = 2
)

// IsPreNakamoto reports whether fee-bearing mempool submission is still
// required for vote-for-aggregate-public-key transactions.
func (e EpochId) IsPreNakamoto() bool { return e < EpochNakamoto }

// TxId is the canonical identifier of a submitted transaction.
type TxId string

// CoordinatorMetadata is a causality token for a signer's view of the burn
// chain: equality and hashing use both fields together.
type CoordinatorMetadata struct {
	PoxConsensusHash string `json:"pox_consensus_hash"` // hex[20]
	BurnBlockHeight  uint64 `json:"burn_block_height"`
}

// Equal reports whether m and other are the same causality token.
func (m CoordinatorMetadata) Equal(other CoordinatorMetadata) bool {
	return m.PoxConsensusHash == other.PoxConsensusHash && m.BurnBlockHeight == other.BurnBlockHeight
}
