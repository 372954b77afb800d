package chain

// Vote is the byte encoding BlockGate derives and the threshold-signing
// library ultimately signs: 32 bytes for a yes vote (the signer signature
// hash verbatim), 33 bytes for a no vote (the hash followed by 'n').
type Vote []byte

const noVoteSuffix = 'n'

// VoteYes encodes an acceptance vote for the given block hash.
func VoteYes(hash [32]byte) Vote {
	v := make(Vote, 32)
	copy(v, hash[:])
	return v
}

// VoteNo encodes a rejection vote for the given block hash.
func VoteNo(hash [32]byte) Vote {
	v := make(Vote, 33)
	copy(v, hash[:])
	v[32] = noVoteSuffix
	return v
}

// IsYes reports whether v is the 32-byte yes-form of a vote.
func (v Vote) IsYes() bool { return len(v) == 32 }

// IsNo reports whether v is the 33-byte 'n'-suffixed no-form of a vote.
func (v Vote) IsNo() bool { return len(v) == 33 && v[32] == noVoteSuffix }

// Valid reports whether v is a well-formed vote encoding.
func (v Vote) Valid() bool { return v.IsYes() || v.IsNo() }

// Hash returns the 32-byte block hash a vote (yes or no) refers to.
// The caller must check Valid() first.
func (v Vote) Hash() [32]byte {
	var h [32]byte
	copy(h[:], v[:32])
	return h
}

// MatchesHash reports whether v, which must be Valid, refers to hash.
func (v Vote) MatchesHash(hash [32]byte) bool {
	return v.Valid() && v.Hash() == hash
}
