// Package bulletin implements the shared per-cycle slotted message bus
// retry-with-backoff insert/read over a transport where each signer
// owns exactly one slot, so concurrent writers never collide.
package bulletin

import (
	"context"
	"errors"

	"github.com/coresig/signer/chain"
	"github.com/coresig/signer/frost"
)

// ErrUnavailable classifies a bulletin failure as transient connectivity
// trouble, as opposed to a request the service rejected on its merits.
var ErrUnavailable = errors.New("bulletin: unavailable")

// MessageKind discriminates the oneof Message variants the bulletin
// transports.
type MessageKind int

const (
	MsgPacket MessageKind = iota
	MsgBlockResponse
	MsgBlockRejection
	MsgTransactions
	MsgNack
)

// BlockResponseKind is the outcome a signer reports for a completed
// signing round.
type BlockResponseKind int

const (
	BlockAccepted BlockResponseKind = iota
	BlockRejectedOutcome
)

// BlockResponse reports a terminal signature over a block once a
// signing round completes.
type BlockResponse struct {
	Kind      BlockResponseKind
	Hash      [32]byte
	Signature []byte
}

// BlockRejectionCode enumerates why BlockGate or the engine refused a
// block without producing a signature.
type BlockRejectionCode int

const (
	RejectMissingTransactions BlockRejectionCode = iota
	RejectConnectivityIssues
	RejectInsufficientSigners
	RejectValidationFailed
)

// BlockRejection is broadcast when a block is refused outright without
// producing a signature.
type BlockRejection struct {
	Code             BlockRejectionCode
	Hash             [32]byte
	MissingTxIDs     []chain.TxId
	MaliciousSigners []uint32
}

// PacketEnvelope wraps a protocol packet with the sender's identity and
// chain-view token, as written to the bulletin by the coordinator or a
// responding party.
type PacketEnvelope struct {
	Packet         frost.Packet
	SenderID       uint32
	SenderMetadata chain.CoordinatorMetadata

	// Signature is the sender's ECDSA signature over the envelope's packet
	// bytes, checked against the cycle's known signer public keys before
	// the inner message is trusted.
	Signature []byte
}

// Nack is a point-to-point signal that the sender holds a more recent
// chain view than the target.
type Nack struct {
	Sender   uint32
	Target   uint32
	Metadata chain.CoordinatorMetadata
}

// Message is the oneof envelope exchanged over the bulletin.
type Message struct {
	Kind           MessageKind
	Packet         *PacketEnvelope
	BlockResponse  *BlockResponse
	BlockRejection *BlockRejection
	Transactions   []*chain.Transaction
	Nack           *Nack
}

// Ack confirms a bulletin write was accepted.
type Ack struct {
	OK bool
}

// Bulletin is the per-cycle shared slot board the signer engine writes
// outbound messages to and polls for peer activity.
type Bulletin interface {
	SendMessageWithRetry(ctx context.Context, msg Message) (Ack, error)
	GetSignerTransactionsWithRetry(ctx context.Context, signerIDs []uint32) ([]*chain.Transaction, error)
	GetSignerSet(ctx context.Context) (uint32, error)
	GetSignerSlotID(ctx context.Context) (uint32, error)
}
