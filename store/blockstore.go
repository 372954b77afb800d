package store

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// BlockStore is the durable mapping from a block's signer signature hash
// to its BlockInfo, queryable by reward cycle.
type BlockStore interface {
	// Get is total and idempotent: ErrNotFound if no row exists.
	Get(rewardCycle uint64, hash [32]byte) (*BlockInfo, error)
	// Put upserts, keyed by (rewardCycle, hash).
	Put(rewardCycle uint64, hash [32]byte, info *BlockInfo) error
	// Remove deletes a row; removing an absent row is not an error.
	Remove(rewardCycle uint64, hash [32]byte) error
	// PurgeBefore deletes every row whose reward cycle is less than
	// currentCycle-keep.
	PurgeBefore(currentCycle uint64, keep uint32) (int, error)
	Close() error
}

const blockKeyPrefix = "blk/"

// blockKey is lexicographically ordered by reward cycle first (fixed-width
// decimal), then by hash, so a prefix scan over "blk/" can recover the
// cycle each row belongs to without a secondary index.
func blockKey(rewardCycle uint64, hash [32]byte) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", blockKeyPrefix, rewardCycle, hex.EncodeToString(hash[:])))
}

func parseBlockKeyCycle(key []byte) (uint64, bool) {
	rest := strings.TrimPrefix(string(key), blockKeyPrefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return 0, false
	}
	cycle, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return cycle, true
}

// LevelBlockStore implements BlockStore on top of a DB (normally LevelDB).
// Guarantees: each Put commits through a Batch before returning, so
// concurrent readers observe either the prior or the new value, never a
// torn one.
type LevelBlockStore struct {
	db DB
}

// NewLevelBlockStore wraps db as a BlockStore.
func NewLevelBlockStore(db DB) *LevelBlockStore {
	return &LevelBlockStore{db: db}
}

func (s *LevelBlockStore) Get(rewardCycle uint64, hash [32]byte) (*BlockInfo, error) {
	data, err := s.db.Get(blockKey(rewardCycle, hash))
	if err != nil {
		return nil, err
	}
	var bi BlockInfo
	if err := json.Unmarshal(data, &bi); err != nil {
		return nil, fmt.Errorf("decode block info: %w", err)
	}
	return &bi, nil
}

func (s *LevelBlockStore) Put(rewardCycle uint64, hash [32]byte, info *BlockInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode block info: %w", err)
	}
	batch := s.db.NewBatch()
	batch.Set(blockKey(rewardCycle, hash), data)
	return batch.Write()
}

func (s *LevelBlockStore) Remove(rewardCycle uint64, hash [32]byte) error {
	batch := s.db.NewBatch()
	batch.Delete(blockKey(rewardCycle, hash))
	return batch.Write()
}

func (s *LevelBlockStore) PurgeBefore(currentCycle uint64, keep uint32) (int, error) {
	if currentCycle < uint64(keep) {
		return 0, nil
	}
	cutoff := currentCycle - uint64(keep)

	iter := s.db.NewIterator([]byte(blockKeyPrefix))
	defer iter.Release()

	var stale [][]byte
	for iter.Next() {
		cycle, ok := parseBlockKeyCycle(iter.Key())
		if !ok || cycle >= cutoff {
			continue
		}
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		stale = append(stale, key)
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	batch := s.db.NewBatch()
	for _, key := range stale {
		batch.Delete(key)
	}
	if err := batch.Write(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func (s *LevelBlockStore) Close() error {
	return s.db.Close()
}
