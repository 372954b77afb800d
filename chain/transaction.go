package chain

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coresig/signer/crypto"
)

// TxType identifies the kind of operation a transaction performs. The hard
// core only ever inspects ContractCall transactions against the
// signers-voting contract; other types pass through TxAuditor unadmitted.
type TxType string

const (
	TxContractCall TxType = "contract_call"
	TxTransfer     TxType = "transfer"
)

// SignersVotingContractName and VoteForAggregatePublicKeyFunction name the
// canonical contract call TxAuditor looks for.
const (
	SignersVotingContractName       = "signers-voting"
	VoteForAggregatePublicKeyFunction = "vote-for-aggregate-public-key"
)

// Transaction is the atomic unit of work submitted to the chain. Origin
// holds the sender's compressed secp256k1 public key hex; Signature covers
// every field except itself.
type Transaction struct {
	ID          string          `json:"id"`
	Type        TxType          `json:"type"`
	Origin      string          `json:"origin"` // hex-encoded compressed pubkey
	OriginNonce uint64          `json:"origin_nonce"`
	Mainnet     bool            `json:"mainnet"`
	Fee         uint64          `json:"fee"`
	Timestamp   int64           `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
	Signature   string          `json:"signature"`
}

type signingBody struct {
	Type        TxType          `json:"type"`
	Origin      string          `json:"origin"`
	OriginNonce uint64          `json:"origin_nonce"`
	Mainnet     bool            `json:"mainnet"`
	Fee         uint64          `json:"fee"`
	Timestamp   int64           `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction, excluding Signature.
func (tx *Transaction) Hash() string {
	body := signingBody{
		Type:        tx.Type,
		Origin:      tx.Origin,
		OriginNonce: tx.OriginNonce,
		Mainnet:     tx.Mainnet,
		Fee:         tx.Fee,
		Timestamp:   tx.Timestamp,
		Payload:     tx.Payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that Origin is a well-formed public key.
func (tx *Transaction) Verify() error {
	if tx.Origin == "" {
		return errors.New("missing origin field")
	}
	pub, err := crypto.PubKeyFromHex(tx.Origin)
	if err != nil {
		return fmt.Errorf("invalid origin (must be compressed secp256k1 pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(typ TxType, origin string, nonce uint64, mainnet bool, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		Type:        typ,
		Origin:      origin,
		OriginNonce: nonce,
		Mainnet:     mainnet,
		Fee:         fee,
		Timestamp:   time.Now().UnixNano(),
		Payload:     raw,
	}, nil
}

// ContractCallPayload is the canonical contract-call payload shape. Args
// are concatenated raw argument bytes in ABI order, mirroring the
// original chain's Clarity argument encoding closely enough for TxAuditor
// to parse without a full Clarity codec.
type ContractCallPayload struct {
	ContractName string `json:"contract_name"`
	FunctionName string `json:"function_name"`
	Args         []byte `json:"args"`
}

// VoteForAggregatePublicKeyArgs is the parsed argument tuple TxAuditor
// validates: signer_index, the proposed aggregate point, and
// the DKG round. RewardCycle is parsed but, per the reward-cycle-argument
// open question, is not used for on-chain consistency checks unless a
// feature flag enables it.
type VoteForAggregatePublicKeyArgs struct {
	SignerIndex uint64
	Point       Point
	Round       uint64
	RewardCycle uint64
}

// EncodeVoteForAggregatePublicKeyArgs packs the argument tuple into the
// raw byte layout ParseVoteForAggregatePublicKeyArgs expects: three
// big-endian uint64s flanking the 33-byte compressed point, with the
// reward-cycle argument reserved at the tail for forward compatibility.
func EncodeVoteForAggregatePublicKeyArgs(a VoteForAggregatePublicKeyArgs) []byte {
	buf := make([]byte, 8+len(a.Point)+8+8)
	binary.BigEndian.PutUint64(buf[0:8], a.SignerIndex)
	copy(buf[8:8+len(a.Point)], a.Point[:])
	off := 8 + len(a.Point)
	binary.BigEndian.PutUint64(buf[off:off+8], a.Round)
	binary.BigEndian.PutUint64(buf[off+8:off+16], a.RewardCycle)
	return buf
}

// ParseVoteForAggregatePublicKeyArgs decodes the raw argument bytes of a
// vote-for-aggregate-public-key call. reward_cycle is
// always present in the wire layout but is reserved for future use: it is
// parsed and ignored for the on-chain consistency check
// unless the caller's config opts in.
func ParseVoteForAggregatePublicKeyArgs(args []byte) (VoteForAggregatePublicKeyArgs, error) {
	const want = 8 + 33 + 8 + 8
	if len(args) != want {
		return VoteForAggregatePublicKeyArgs{}, fmt.Errorf(
			"vote-for-aggregate-public-key args must be %d bytes, got %d", want, len(args))
	}
	var point Point
	copy(point[:], args[8:8+33])
	return VoteForAggregatePublicKeyArgs{
		SignerIndex: binary.BigEndian.Uint64(args[0:8]),
		Point:       point,
		Round:       binary.BigEndian.Uint64(args[41:49]),
		RewardCycle: binary.BigEndian.Uint64(args[49:57]),
	}, nil
}

// IsVoteForAggregatePublicKeyCall reports whether payload targets the
// canonical signers-voting contract's vote function.
func (p ContractCallPayload) IsVoteForAggregatePublicKeyCall() bool {
	return p.ContractName == SignersVotingContractName && p.FunctionName == VoteForAggregatePublicKeyFunction
}

// ComputeTxRoot builds a deterministic root hash from all transaction IDs.
// Each ID is length-prefixed (4-byte big-endian) to prevent boundary
// ambiguity where different ID sets could otherwise produce the same byte
// sequence.
func ComputeTxRoot(txs []*Transaction) string {
	if len(txs) == 0 {
		return crypto.Hash([]byte("empty"))
	}
	var buf []byte
	var lenBuf [4]byte
	for _, tx := range txs {
		id := []byte(tx.ID)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(id)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, id...)
	}
	return crypto.Hash(buf)
}
