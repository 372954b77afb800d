package chain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/coresig/signer/crypto"
)

// BlockHeader carries the fields a signer needs to reach a vote without
// fetching the full block body again: its position in the chain, the
// burn-chain view it was proposed against, and the canonical hash signers
// sign over.
type BlockHeader struct {
	Height              uint64   `json:"height"`
	ParentBlockID       string   `json:"parent_block_id"`
	ConsensusHash       string   `json:"consensus_hash"`     // hex, tenure-change anchor
	PoxConsensusHash    string   `json:"pox_consensus_hash"` // hex[20], CoordinatorMetadata half
	BurnBlockHeight     uint64   `json:"burn_block_height"`  // CoordinatorMetadata half
	Proposer            string   `json:"proposer"`           // miner pubkey hex
	SignerSignatureHash [32]byte `json:"signer_signature_hash"`
}

// Block is a miner-proposed block awaiting signer ratification. Only the
// header fields the signer's own logic inspects are modeled; the rest of
// the block body is opaque and carried through unexamined, as the hard
// core never re-derives chain state from it.
type Block struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
}

// ComputeSignerSignatureHash derives the canonical 32-byte digest signers
// sign over, from the header fields that determine block identity.
func (b *Block) ComputeSignerSignatureHash() [32]byte {
	type signedFields struct {
		Height           uint64 `json:"height"`
		ParentBlockID    string `json:"parent_block_id"`
		ConsensusHash    string `json:"consensus_hash"`
		PoxConsensusHash string `json:"pox_consensus_hash"`
		BurnBlockHeight  uint64 `json:"burn_block_height"`
		TxRoot           string `json:"tx_root"`
	}
	data, err := json.Marshal(signedFields{
		Height:           b.Header.Height,
		ParentBlockID:    b.Header.ParentBlockID,
		ConsensusHash:    b.Header.ConsensusHash,
		PoxConsensusHash: b.Header.PoxConsensusHash,
		BurnBlockHeight:  b.Header.BurnBlockHeight,
		TxRoot:           ComputeTxRoot(b.Transactions),
	})
	if err != nil {
		return [32]byte{}
	}
	var h [32]byte
	copy(h[:], crypto.HashBytes(data))
	return h
}

// Metadata extracts the header's causality token: a signer that observes
// this block advances its own chain view to this value.
func (h BlockHeader) Metadata() CoordinatorMetadata {
	return CoordinatorMetadata{PoxConsensusHash: h.PoxConsensusHash, BurnBlockHeight: h.BurnBlockHeight}
}

// Finalize stamps the block's SignerSignatureHash from its current
// contents. Miners call this once before broadcasting; signers never call
// it, they only verify it matches.
func (b *Block) Finalize() {
	b.Header.SignerSignatureHash = b.ComputeSignerSignatureHash()
}

// VerifyHash reports whether the stored SignerSignatureHash matches the
// header's actual contents, guarding against a tampered-with proposal.
func (b *Block) VerifyHash() error {
	computed := b.ComputeSignerSignatureHash()
	if computed != b.Header.SignerSignatureHash {
		return fmt.Errorf("signer signature hash mismatch: stored %x computed %x",
			b.Header.SignerSignatureHash, computed)
	}
	return nil
}

// HashHex returns the lowercase hex encoding of the signer signature hash.
func (b *Block) HashHex() string {
	return hex.EncodeToString(b.Header.SignerSignatureHash[:])
}
