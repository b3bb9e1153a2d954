// Package store keeps encoded envelopes on disk, one file per block hash,
// with a block number index and a small cache of decoded envelopes.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/smallyunet/ethpayload/pkg/codec"
	"github.com/smallyunet/ethpayload/pkg/payload"
)

const indexFile = "index.json"

var ErrNotFound = errors.New("envelope not found")

// Options tunes a Store. Zero values disable the cache and keep every entry.
type Options struct {
	CacheSize  int
	MaxHistory int
}

// Store is safe for concurrent use.
type Store struct {
	dir   string
	codec codec.Codec

	mu           sync.RWMutex
	numberToHash map[uint64]common.Hash
	hashToNumber map[common.Hash]uint64
	numbers      []uint64 // ascending
	maxHistory   int

	cache  *lru.Cache[common.Hash, *payload.Envelope]
	logger *slog.Logger
}

// Open prepares dir and loads its index.
func Open(dir string, c codec.Codec, opts Options) (*Store, error) {
	if c == nil {
		return nil, fmt.Errorf("store codec: %w", codec.ErrNilValue)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	s := &Store{
		dir:          dir,
		codec:        c,
		numberToHash: make(map[uint64]common.Hash),
		hashToNumber: make(map[common.Hash]uint64),
		maxHistory:   opts.MaxHistory,
		logger:       slog.Default().With("component", "store"),
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[common.Hash, *payload.Envelope](opts.CacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	storeEntries.Set(float64(len(s.numbers)))
	return s, nil
}

// Codec returns the codec envelopes are stored with.
func (s *Store) Codec() codec.Codec { return s.codec }

func (s *Store) path(hash common.Hash) string {
	return filepath.Join(s.dir, hash.Hex()+"."+s.codec.Name())
}

// index is a copy of the number index that Put edits before committing.
type index struct {
	numberToHash map[uint64]common.Hash
	hashToNumber map[common.Hash]uint64
	numbers      []uint64
}

func (s *Store) snapshot() *index {
	return &index{
		numberToHash: maps.Clone(s.numberToHash),
		hashToNumber: maps.Clone(s.hashToNumber),
		numbers:      slices.Clone(s.numbers),
	}
}

// set indexes hash under number and returns the hashes no number refers to
// any more. A hash already indexed under another number moves to number.
func (ix *index) set(number uint64, hash common.Hash) (dropped []common.Hash) {
	if prev, ok := ix.hashToNumber[hash]; ok && prev != number {
		ix.remove(prev)
	}
	if old, ok := ix.numberToHash[number]; ok {
		if old != hash {
			delete(ix.hashToNumber, old)
			dropped = append(dropped, old)
		}
	} else {
		i, _ := slices.BinarySearch(ix.numbers, number)
		ix.numbers = slices.Insert(ix.numbers, i, number)
	}
	ix.numberToHash[number] = hash
	ix.hashToNumber[hash] = number
	return dropped
}

func (ix *index) remove(number uint64) {
	hash := ix.numberToHash[number]
	delete(ix.numberToHash, number)
	delete(ix.hashToNumber, hash)
	if i, ok := slices.BinarySearch(ix.numbers, number); ok {
		ix.numbers = slices.Delete(ix.numbers, i, i+1)
	}
}

// prune drops the lowest numbers until at most limit remain.
func (ix *index) prune(limit int) (dropped []common.Hash) {
	for limit > 0 && len(ix.numbers) > limit {
		oldN := ix.numbers[0]
		dropped = append(dropped, ix.numberToHash[oldN])
		ix.remove(oldN)
	}
	return dropped
}

// Put stores env under its block hash and indexes it by block number. An
// existing entry for the same number is replaced, and a hash stored under
// another number is moved to this one. The in-memory index only changes
// once index.json has been written.
func (s *Store) Put(env *payload.Envelope) (err error) {
	defer func() { observe("put", err) }()

	if env == nil {
		return fmt.Errorf("put: %w", codec.ErrNilValue)
	}
	data, err := s.codec.EncodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	number, hash := env.Payload().BlockNumber(), env.Payload().BlockHash()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.hashToNumber[hash]
	if err := writeAtomic(s.path(hash), data); err != nil {
		return err
	}

	next := s.snapshot()
	dropped := next.set(number, hash)
	dropped = append(dropped, next.prune(s.maxHistory)...)

	if err := saveIndex(s.dir, next.numberToHash); err != nil {
		if !existed {
			_ = os.Remove(s.path(hash))
		}
		s.logger.Error("Index not persisted, envelope discarded", "number", number, "hash", hash.Hex(), "error", err)
		return err
	}

	if old, ok := s.numberToHash[number]; ok && old != hash {
		s.logger.Info("Replaced envelope", "number", number, "old", old.Hex(), "new", hash.Hex())
	}
	s.numberToHash, s.hashToNumber, s.numbers = next.numberToHash, next.hashToNumber, next.numbers
	if s.cache != nil {
		s.cache.Add(hash, env)
	}
	for _, h := range dropped {
		if _, live := s.hashToNumber[h]; live {
			continue
		}
		s.removeFile(h)
		s.logger.Debug("Removed envelope", "hash", h.Hex())
	}
	storeEntries.Set(float64(len(s.numbers)))

	s.logger.Debug("Stored envelope", "number", number, "hash", hash.Hex())
	return nil
}

// Get returns the envelope stored under hash.
func (s *Store) Get(hash common.Hash) (env *payload.Envelope, err error) {
	defer func() { observe("get", err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(hash)
}

func (s *Store) get(hash common.Hash) (*payload.Envelope, error) {
	if s.cache != nil {
		if env, ok := s.cache.Get(hash); ok {
			cacheHits.Inc()
			return env, nil
		}
	}
	data, err := os.ReadFile(s.path(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	env, err := s.codec.DecodeEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", hash.Hex(), err)
	}
	if s.cache != nil {
		s.cache.Add(hash, env)
	}
	return env, nil
}

// GetByNumber returns the envelope indexed under block number n.
func (s *Store) GetByNumber(n uint64) (env *payload.Envelope, err error) {
	defer func() { observe("get_by_number", err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	hash, ok := s.numberToHash[n]
	if !ok {
		return nil, ErrNotFound
	}
	return s.get(hash)
}

// Latest returns the envelope with the highest block number.
func (s *Store) Latest() (env *payload.Envelope, err error) {
	defer func() { observe("latest", err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.numbers) == 0 {
		return nil, ErrNotFound
	}
	return s.get(s.numberToHash[s.numbers[len(s.numbers)-1]])
}

// Numbers lists indexed block numbers in ascending order.
func (s *Store) Numbers() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint64, len(s.numbers))
	copy(out, s.numbers)
	return out
}

// HashOf returns the block hash indexed under n.
func (s *Store) HashOf(n uint64) (common.Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hash, ok := s.numberToHash[n]
	return hash, ok
}

func (s *Store) removeFile(hash common.Hash) {
	if s.cache != nil {
		s.cache.Remove(hash)
	}
	if err := os.Remove(s.path(hash)); err != nil && !os.IsNotExist(err) {
		s.logger.Error("Failed to remove envelope file", "hash", hash.Hex(), "error", err)
	}
}

func saveIndex(dir string, numberToHash map[uint64]common.Hash) error {
	data, err := json.Marshal(numberToHash)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	return writeAtomic(filepath.Join(dir, indexFile), data)
}

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read index: %w", err)
	}

	var m map[uint64]common.Hash
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("unmarshal index: %w", err)
	}
	s.numberToHash = m
	if s.numberToHash == nil {
		s.numberToHash = make(map[uint64]common.Hash)
	}

	s.numbers = make([]uint64, 0, len(s.numberToHash))
	for n := range s.numberToHash {
		s.numbers = append(s.numbers, n)
	}
	slices.Sort(s.numbers)

	// A hash listed under several numbers stays with the highest one.
	s.hashToNumber = make(map[common.Hash]uint64, len(s.numbers))
	for _, n := range s.numbers {
		hash := s.numberToHash[n]
		if prev, ok := s.hashToNumber[hash]; ok {
			delete(s.numberToHash, prev)
		}
		s.hashToNumber[hash] = n
	}
	if len(s.numberToHash) != len(s.numbers) {
		s.numbers = slices.Collect(maps.Keys(s.numberToHash))
		slices.Sort(s.numbers)
	}
	s.logger.Info("Loaded store index", "dir", s.dir, "entries", len(s.numbers))
	return nil
}

// writeAtomic writes to a temp file then renames it over path.
func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", tmpPath, err)
	}
	return nil
}
