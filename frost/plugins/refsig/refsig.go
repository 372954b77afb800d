// Package refsig is a simplified, non-production reference implementation
// of the frost.Coordinator/frost.SignerParty contracts. A signing round
// runs the real two-phase shape (a nonce request opens the round, nonce
// responses gate a signature-share request, shares close it), but the
// cryptography is a stand-in: the DKG picks the lexicographically lowest
// key-share commitment as the aggregate public key instead of combining
// shares, and that party's plain ECDSA signature stands in for the
// threshold-aggregated signature, so the result verifies under the
// aggregate without a real FROST aggregator. It exists only to exercise
// the engine's wiring to the threshold-signing library in tests and the
// demo binary, and must never be imported by package signer outside its
// tests.
package refsig

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/coresig/signer/chain"
	"github.com/coresig/signer/crypto"
	"github.com/coresig/signer/frost"
)

func init() {
	frost.Register("refsig", New)
}

// New is the frost.Factory registered under the "refsig" plugin name.
func New(signerID uint32, numKeys, threshold, dkgThreshold uint32) (frost.Party, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return frost.Party{}, fmt.Errorf("refsig: generate key share: %w", err)
	}
	s := &shared{
		signerID:     signerID,
		threshold:    threshold,
		dkgThreshold: dkgThreshold,
		priv:         priv,
		dkgShares:    make(map[string]*btcec.PublicKey),
		nonces:       make(map[string]struct{}),
		sigShares:    make(map[string][]byte),
	}
	return frost.Party{Coordinator: &coordinator{s}, SignerParty: &signerParty{s}}, nil
}

type roundKind int

const (
	roundNone roundKind = iota
	roundDkg
	roundSign
)

// Raw layouts for the MsgOther packets this scheme exchanges: a bare
// 33-byte compressed point is a DKG key-share commitment; tagged blobs
// carry the signing round's responses.
const (
	nonceResponseTag  = 'N' // tag || 33-byte pubkey; Payload echoes the message
	signatureShareTag = 'S' // tag || 33-byte pubkey || DER signature over Payload
)

// shared holds the state both the Coordinator and SignerParty views of a
// refsig party read and mutate; they are two interfaces over one party
// because Go cannot let a single type implement two methods of the same
// name (ProcessInboundMessages) with different signatures.
type shared struct {
	mu sync.Mutex

	signerID     uint32
	threshold    uint32
	dkgThreshold uint32

	priv *btcec.PrivateKey // this party's share of the simulated group key

	state      frost.State
	round      roundKind
	sharePhase bool // roundSign: false while collecting nonces, true once requesting shares
	opener     bool // this party started the active signing round
	dkgID      uint64
	aggregate  *chain.Point
	message    []byte // the message currently under signature, for GetMessage

	dkgShares map[string]*btcec.PublicKey // hex(commitment point) -> point
	nonces    map[string]struct{}         // hex(responder pubkey)
	sigShares map[string][]byte           // hex(responder pubkey) -> DER signature

	respondedNonce []byte // last message this party answered with a nonce
	respondedShare []byte // last message this party answered with a share
}

// shareBytes packs this party's signature share over message into the
// tagged Raw layout: tag || compressed pubkey || DER signature.
func (s *shared) shareBytes(message []byte) []byte {
	sig := ecdsa.Sign(s.priv, crypto.HashBytes(message))
	raw := append([]byte{signatureShareTag}, s.priv.PubKey().SerializeCompressed()...)
	return append(raw, sig.Serialize()...)
}

type coordinator struct{ s *shared }

func (c *coordinator) StartDkgRound() (frost.Packet, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = frost.StateOperationInProgress
	s.round = roundDkg
	s.dkgShares = make(map[string]*btcec.PublicKey)
	pub := s.priv.PubKey().SerializeCompressed()
	s.dkgShares[hex.EncodeToString(pub)] = s.priv.PubKey()
	return frost.Packet{Msg: frost.Message{Kind: frost.MsgOther, Raw: pub}}, nil
}

// StartSigningRound opens a round over message (the serialized block) by
// issuing the nonce request every party answers before any share is
// requested.
func (c *coordinator) StartSigningRound(message []byte, taproot bool, merkleRoot []byte) (frost.Packet, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = frost.StateOperationInProgress
	s.round = roundSign
	s.sharePhase = false
	s.opener = true
	s.message = append([]byte(nil), message...)
	s.nonces = make(map[string]struct{})
	s.sigShares = make(map[string][]byte)
	return frost.Packet{Msg: frost.Message{Kind: frost.MsgNonceRequest, Payload: s.message}}, nil
}

// ProcessInboundMessages drives both the active round this party opened
// and, passively, a round opened by a peer coordinator: seeing a nonce
// request while idle enters the round as a follower, so every party's
// Coordinator view observes the same completion and reports its own
// OperationResult. Completion is checked once per batch so a round emits
// exactly one result no matter how many responses past the threshold
// arrive together.
func (c *coordinator) ProcessInboundMessages(packets []frost.Packet) ([]frost.Packet, []frost.OperationResult, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var outbound []frost.Packet
	for _, p := range packets {
		switch p.Msg.Kind {
		case frost.MsgNonceRequest:
			// A peer opened a round; the opener skips its own echo. The
			// payload has already been resolved to this signer's vote by
			// the time it reaches the party.
			if s.round != roundSign {
				s.state = frost.StateOperationInProgress
				s.round = roundSign
				s.sharePhase = false
				s.opener = false
				s.message = append([]byte(nil), p.Msg.Payload...)
				s.nonces = make(map[string]struct{})
				s.sigShares = make(map[string][]byte)
			}

		case frost.MsgSignatureShareRequest:
			// A follower that has not yet seen threshold nonces still moves
			// to the share phase when the opener requests shares.
			if s.round == roundSign && !s.sharePhase {
				s.sharePhase = true
				s.message = append([]byte(nil), p.Msg.Payload...)
			}

		case frost.MsgOther:
			raw := p.Msg.Raw
			switch {
			case len(raw) == 33:
				if pub, err := btcec.ParsePubKey(raw); err == nil {
					s.dkgShares[hex.EncodeToString(raw)] = pub
				}
			case len(raw) == 34 && raw[0] == nonceResponseTag:
				if s.round == roundSign && !s.sharePhase {
					s.nonces[hex.EncodeToString(raw[1:])] = struct{}{}
					// Responses echo the message each signer resolved the
					// request to; adopting it is what lets a vote overwrite
					// survive a coordinator that shifted the message.
					s.message = append([]byte(nil), p.Msg.Payload...)
				}
			case len(raw) > 34 && raw[0] == signatureShareTag:
				if s.round == roundSign {
					s.sigShares[hex.EncodeToString(raw[1:34])] = append([]byte(nil), raw[34:]...)
				}
			}

		default:
			outbound = append(outbound, p)
		}
	}

	var results []frost.OperationResult
	if s.state == frost.StateOperationInProgress {
		switch s.round {
		case roundDkg:
			if uint32(len(s.dkgShares)) >= s.dkgThreshold {
				point := lowestPoint(s.dkgShares)
				s.aggregate = &point
				s.state = frost.StateIdle
				s.round = roundNone
				results = append(results, frost.OperationResult{Kind: frost.ResultDkg, DkgPoint: point})
			}

		case roundSign:
			if !s.sharePhase && uint32(len(s.nonces)) >= s.threshold {
				s.sharePhase = true
				if s.opener {
					outbound = append(outbound, frost.Packet{Msg: frost.Message{
						Kind:    frost.MsgSignatureShareRequest,
						Payload: append([]byte(nil), s.message...),
					}})
				}
			}
			if s.sharePhase && uint32(len(s.sigShares)) >= s.threshold {
				if sig, ok := s.aggregateShare(); ok {
					s.state = frost.StateIdle
					s.round = roundNone
					s.opener = false
					results = append(results, frost.OperationResult{Kind: frost.ResultSign, Signature: sig})
				}
			}
		}
	}
	return outbound, results, nil
}

// aggregateShare picks the share standing in for the aggregate signature:
// the aggregate-key owner's once the aggregate is known (the only share
// that verifies under it), any collected share when no DKG has run yet.
// The round stays open until that share arrives.
func (s *shared) aggregateShare() ([]byte, bool) {
	if s.aggregate != nil {
		sig, ok := s.sigShares[hex.EncodeToString(s.aggregate[:])]
		return sig, ok
	}
	for _, sig := range s.sigShares {
		return sig, true
	}
	return nil, false
}

func (c *coordinator) GetAggregatePublicKey() (chain.Point, bool) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aggregate == nil {
		return chain.Point{}, false
	}
	return *s.aggregate, true
}

func (c *coordinator) SetAggregatePublicKey(point chain.Point) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregate = &point
}

func (c *coordinator) GetMessage() []byte {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

func (c *coordinator) CurrentDkgID() uint64 {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dkgID
}

func (c *coordinator) SetCurrentDkgID(id uint64) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dkgID = id
}

func (c *coordinator) State() frost.State {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

type signerParty struct{ s *shared }

// ProcessInboundMessages answers each request kind at most once per
// distinct message: a nonce request gets a nonce response echoing the
// (vote-resolved) message, a signature-share request gets this party's
// share over it. Everything else is consumed silently; accumulation is
// the Coordinator view's job, and echoing packets back out would loop
// them through the bulletin forever.
func (p *signerParty) ProcessInboundMessages(packets []frost.Packet) ([]frost.Packet, error) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []frost.Packet
	for _, pkt := range packets {
		switch pkt.Msg.Kind {
		case frost.MsgNonceRequest:
			if bytes.Equal(pkt.Msg.Payload, s.respondedNonce) {
				continue
			}
			s.respondedNonce = append([]byte(nil), pkt.Msg.Payload...)
			raw := append([]byte{nonceResponseTag}, s.priv.PubKey().SerializeCompressed()...)
			out = append(out, frost.Packet{Msg: frost.Message{
				Kind:    frost.MsgOther,
				Payload: append([]byte(nil), pkt.Msg.Payload...),
				Raw:     raw,
			}})
		case frost.MsgSignatureShareRequest:
			if bytes.Equal(pkt.Msg.Payload, s.respondedShare) {
				continue
			}
			s.respondedShare = append([]byte(nil), pkt.Msg.Payload...)
			out = append(out, frost.Packet{Msg: frost.Message{
				Kind:    frost.MsgOther,
				Payload: append([]byte(nil), pkt.Msg.Payload...),
				Raw:     s.shareBytes(pkt.Msg.Payload),
			}})
		}
	}
	return out, nil
}

func (p *signerParty) PublicKeys() frost.PublicKeys {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var point chain.Point
	copy(point[:], s.priv.PubKey().SerializeCompressed())
	return frost.PublicKeys{
		Signer: map[uint32]chain.Point{s.signerID: point},
		Key:    map[uint32]chain.Point{s.signerID: point},
	}
}

// lowestPoint picks the lexicographically smallest commitment as the
// round's aggregate public key: every party that saw the same share set
// converges on the same point without combining keys.
func lowestPoint(shares map[string]*btcec.PublicKey) chain.Point {
	var best []byte
	for _, pub := range shares {
		b := pub.SerializeCompressed()
		if best == nil || bytes.Compare(b, best) < 0 {
			best = b
		}
	}
	var p chain.Point
	copy(p[:], best)
	return p
}
