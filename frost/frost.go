// Package frost defines the contract boundary between the signer engine
// and the underlying threshold-signature library (DKG and FROST signing
// rounds). No cryptographic implementation lives here: production signers
// are expected to wire in a real WSTS/FROST library behind these
// interfaces. See plugins/refsig for a simplified reference implementation
// used only by tests and the demo binary.
package frost

import (
	"errors"

	"github.com/coresig/signer/chain"
)

// MessageKind distinguishes the protocol-message variants the engine must
// specially recognize (to apply vote-injection and view-reconciliation
// rules) from the rest, which are forwarded opaquely.
type MessageKind int

const (
	MsgOther MessageKind = iota
	MsgNonceRequest
	MsgSignatureShareRequest
)

// Message is one application-level protocol message carried inside a
// Packet. Payload carries the kind-specific content the engine inspects:
// for NonceRequest it is the miner's serialized block (resolved to a vote
// only once validation completes); for SignatureShareRequest it
// is the vote bytes the engine may overwrite with its cached vote. Raw carries the
// opaque wire encoding for every other message kind untouched.
type Message struct {
	Kind    MessageKind
	Payload []byte
	Raw     []byte
}

// Packet is the signed envelope exchanged between signers over the
// bulletin and processed by the Coordinator/SignerParty.
type Packet struct {
	Msg       Message
	Signature []byte
}

// SignErrorKind enumerates why a signing round failed to produce a result.
type SignErrorKind int

const (
	SignErrNonceTimeout SignErrorKind = iota
	SignErrInsufficientSigners
	SignErrAggregator
)

// SignError carries a failed signing round's classification and, for
// InsufficientSigners, the signer ids identified as non-responsive.
type SignError struct {
	Kind             SignErrorKind
	MaliciousSigners []uint32
	Err              error
}

func (e *SignError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "frost: sign error"
}

// OperationResultKind enumerates the terminal outcomes a Coordinator can
// report back to the engine after ProcessInboundMessages.
type OperationResultKind int

const (
	ResultSign OperationResultKind = iota
	ResultSignTaproot
	ResultDkg
	ResultSignError
	ResultDkgError
)

// OperationResult is a single completed-round outcome. Exactly the field
// matching Kind is populated.
type OperationResult struct {
	Kind      OperationResultKind
	Signature []byte      // ResultSign
	DkgPoint  chain.Point // ResultDkg
	SignErr   *SignError  // ResultSignError
	DkgErr    error       // ResultDkgError
}

// State is the Coordinator's round state machine. Only Idle is
// distinguished by the engine; every other value is treated as "busy".
type State int

const (
	StateIdle State = iota
	StateOperationInProgress
)

// Coordinator drives one party's view of a DKG or signing round: it issues
// the round-opening packet, ingests inbound packets from peers, and
// reports completed operations.
type Coordinator interface {
	StartDkgRound() (Packet, error)
	StartSigningRound(message []byte, taproot bool, merkleRoot []byte) (Packet, error)
	ProcessInboundMessages(packets []Packet) ([]Packet, []OperationResult, error)

	GetAggregatePublicKey() (chain.Point, bool)
	SetAggregatePublicKey(point chain.Point)

	GetMessage() []byte

	CurrentDkgID() uint64
	SetCurrentDkgID(id uint64)

	State() State
}

// PublicKeys is a SignerParty's view of the cycle's key material.
type PublicKeys struct {
	Signer map[uint32]chain.Point // signer id -> point
	Key    map[uint32]chain.Point // key id -> point
}

// SignerParty holds this signer's key shares and contributes partial
// signatures/DKG shares as packets arrive.
type SignerParty interface {
	ProcessInboundMessages(packets []Packet) ([]Packet, error)
	PublicKeys() PublicKeys
}

// ErrUnknownPlugin is returned by Open when no factory is registered under
// the requested name.
var ErrUnknownPlugin = errors.New("frost: unknown plugin")

// Party bundles one cycle's Coordinator and SignerParty, as produced by a
// registered plugin Factory.
type Party struct {
	Coordinator Coordinator
	SignerParty SignerParty
}

// Factory constructs a Party for one signer in one reward cycle. signerID
// is this signer's position in the cycle's coordinator ordering; numKeys,
// threshold and dkgThreshold size the cycle's key set and its signing and
// DKG-completion thresholds.
type Factory func(signerID uint32, numKeys, threshold, dkgThreshold uint32) (Party, error)
