// Package cache implements the framework's in-process LRU cache engine,
// per spec.md §4.5: a process-wide store mapping namespace -> LRU, with
// a single byte budget (maxBytes) shared and enforced across every
// namespace, values encrypted at rest, and optional structured logging.
package cache

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wudi/runway/internal/logging"
	"github.com/wudi/runway/internal/metrics"
)

// entryOverhead models spec.md's sizeBytes formula: 8 bytes for the
// expiry timestamp, 8 for the created-at timestamp, 8 for list/map
// bookkeeping, for every stored entry regardless of value length.
const entryOverhead = 24

// OnDeleteFunc is invoked whenever an entry leaves the cache, whether by
// explicit delete, expiry, eviction, or a namespace/global clear.
type OnDeleteFunc func(namespace, key string, value []byte)

// Config configures a Store.
type Config struct {
	MaxBytes   int64
	OnDelete   OnDeleteFunc
	LogEnabled bool
	Encrypt    bool
	Metrics    *metrics.Collector
}

// Store is the process-wide CacheStore singleton described by spec.md
// §4.5. All public mutators hold mu for their full duration,
// including the eviction loop, matching the concurrency model in
// spec.md §5 ("cache read/write under the store lock").
type Store struct {
	mu         sync.Mutex
	maxBytes   int64
	globalSize int64
	namespaces map[string]*lru
	onDelete   OnDeleteFunc
	logEnabled bool
	cipher     cipherAtRest
	metrics    *metrics.Collector
}

// ErrInvalidMaxBytes is returned by New when maxBytes cannot be
// resolved to a positive count.
var ErrInvalidMaxBytes = errors.New("cache: maxBytes must be positive")

// New constructs a Store. A process-random AES-256-CBC key/IV pair is
// generated immediately unless cfg.Encrypt is false, in which case
// values are stored as-is (the identity transform used by tests).
func New(cfg Config) (*Store, error) {
	if cfg.MaxBytes <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMaxBytes, cfg.MaxBytes)
	}

	var c cipherAtRest = identityCipher{}
	if cfg.Encrypt {
		aesCipher, err := newAESCBCCipher()
		if err != nil {
			return nil, err
		}
		c = aesCipher
	}

	return &Store{
		maxBytes:   cfg.MaxBytes,
		namespaces: make(map[string]*lru),
		onDelete:   cfg.OnDelete,
		logEnabled: cfg.LogEnabled,
		cipher:     c,
		metrics:    cfg.Metrics,
	}, nil
}

func (s *Store) namespaceFor(ns string) *lru {
	l, ok := s.namespaces[ns]
	if !ok {
		l = newLRU()
		s.namespaces[ns] = l
	}
	return l
}

func sizeOf(key string, value []byte) int64 {
	return int64(len(key)) + int64(len(value)) + entryOverhead
}

// Set encrypts value, computes its entry size, evicts across every
// namespace until globalSize+entrySize <= maxBytes, then inserts at the
// head of ns's list. ttl <= 0 means the entry never expires.
func (s *Store) Set(ns, key string, value []byte, ttl time.Duration) error {
	sealed, err := s.cipher.Seal(value)
	if err != nil {
		return fmt.Errorf("cache: sealing value: %w", err)
	}

	size := sizeOf(key, sealed)
	now := time.Now()
	var expireAt int64
	if ttl > 0 {
		expireAt = now.Add(ttl).UnixMilli()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.namespaceFor(ns)

	// Replacing an existing key frees its old size first so the
	// eviction loop below sees an accurate required delta.
	if existingSize := l.remove(key); existingSize > 0 {
		s.decGlobalSize(existingSize)
	}

	s.enforceGlobal(size)

	l.insert(key, sealed, now.UnixMilli(), expireAt, size)
	s.globalSize += size
	s.setSizeGauge()
	return nil
}

// Get returns the decrypted value for (ns, key), moving it to the head
// of its namespace's LRU. Absent or expired entries return (nil, false);
// an expired entry is deleted as a side effect.
func (s *Store) Get(ns, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.namespaces[ns]
	if !ok {
		s.recordMiss(ns)
		return nil, false
	}
	h, ok := l.byKey[key]
	if !ok {
		s.recordMiss(ns)
		return nil, false
	}
	n := l.at(h)
	if n.expireAt != 0 && time.Now().UnixMilli() > n.expireAt {
		value := n.value
		size := l.remove(key)
		s.decGlobalSize(size)
		s.setSizeGauge()
		s.notifyDelete(ns, key, value)
		s.recordMiss(ns)
		return nil, false
	}

	l.moveToFront(h)
	s.recordHit(ns)

	value, err := s.cipher.Open(n.value)
	if err != nil {
		s.logWarn("cache: failed to decrypt entry", zap.String("namespace", ns), zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return value, true
}

// Delete removes (ns, key) if present, updating globalSize.
func (s *Store) Delete(ns, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.namespaces[ns]
	if !ok {
		return
	}
	h, ok := l.byKey[key]
	if !ok {
		return
	}
	value := l.at(h).value
	size := l.remove(key)
	s.decGlobalSize(size)
	s.setSizeGauge()
	s.notifyDelete(ns, key, value)
}

// Clear empties one namespace, or every namespace if ns is "".
func (s *Store) Clear(ns string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ns != "" {
		s.clearNamespace(ns)
		s.setSizeGauge()
		return
	}
	for name := range s.namespaces {
		s.clearNamespace(name)
	}
	s.setSizeGauge()
}

func (s *Store) clearNamespace(ns string) {
	l, ok := s.namespaces[ns]
	if !ok {
		return
	}
	for {
		key, value, size, ok := l.removeTail()
		if !ok {
			break
		}
		s.decGlobalSize(size)
		s.notifyDelete(ns, key, value)
	}
}

// Has reports whether ns contains key, without affecting recency or
// checking expiry (a point-in-time structural check per spec.md's
// per-LRU operation list).
func (s *Store) Has(ns, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.namespaces[ns]
	if !ok {
		return false
	}
	_, ok = l.byKey[key]
	return ok
}

// Size returns the number of live entries in ns.
func (s *Store) Size(ns string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.namespaces[ns]
	if !ok {
		return 0
	}
	return l.len()
}

// GlobalSize returns the current total byte accounting across every
// namespace.
func (s *Store) GlobalSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globalSize
}

// Keys returns ns's keys, most- to least-recently-used.
func (s *Store) Keys(ns string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.namespaces[ns]
	if !ok {
		return nil
	}
	return l.keysInOrder()
}

// PaginatedKeys returns a 1-indexed page of ns's keys, most- to
// least-recently-used.
func (s *Store) PaginatedKeys(ns string, page, pageSize int) []string {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	keys := s.Keys(ns)
	start := (page - 1) * pageSize
	if start >= len(keys) {
		return nil
	}
	end := start + pageSize
	if end > len(keys) {
		end = len(keys)
	}
	return keys[start:end]
}

// Values returns the decrypted values for every live, unexpired key in
// ns, most- to least-recently-used.
func (s *Store) Values(ns string) [][]byte {
	keys := s.Keys(ns)
	values := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if v, ok := s.Get(ns, k); ok {
			values = append(values, v)
		}
	}
	return values
}

// maxEvictionIterations is the hard safety cap from spec.md §4.5: the
// eviction loop never iterates more than this many times, regardless of
// how many namespaces exist.
const maxEvictionIterations = 1000

// enforceGlobal evicts least-recently-used entries, arbitrary but
// deterministic order across namespaces, until globalSize+required <=
// maxBytes or no candidate remains. Must be called with s.mu held.
func (s *Store) enforceGlobal(required int64) {
	if s.globalSize+required <= s.maxBytes {
		return
	}

	names := make([]string, 0, len(s.namespaces))
	for name := range s.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)

	lastSize := s.globalSize
	for i := 0; i < maxEvictionIterations; i++ {
		if s.globalSize+required <= s.maxBytes {
			return
		}

		evicted := false
		for _, name := range names {
			l := s.namespaces[name]
			key, value, size, ok := l.removeTail()
			if !ok {
				continue
			}
			s.decGlobalSize(size)
			if s.metrics != nil {
				s.metrics.RecordCacheEviction(name)
			}
			s.notifyDelete(name, key, value)
			evicted = true
			break
		}
		if !evicted {
			return
		}
		if s.globalSize >= lastSize {
			s.logWarn("cache: eviction loop made no progress, aborting", zap.Int64("globalSize", s.globalSize))
			return
		}
		lastSize = s.globalSize
	}
	s.logWarn("cache: eviction loop hit the iteration safety cap", zap.Int("cap", maxEvictionIterations))
}

func (s *Store) decGlobalSize(n int64) {
	s.globalSize -= n
	if s.globalSize < 0 {
		s.logWarn("cache: globalSize underflowed, clamping to 0", zap.Int64("delta", n))
		s.globalSize = 0
	}
}

func (s *Store) setSizeGauge() {
	if s.metrics != nil {
		s.metrics.SetCacheGlobalSize(s.globalSize)
	}
}

func (s *Store) recordHit(ns string) {
	if s.metrics != nil {
		s.metrics.RecordCacheHit(ns)
	}
}

func (s *Store) recordMiss(ns string) {
	if s.metrics != nil {
		s.metrics.RecordCacheMiss(ns)
	}
}

func (s *Store) notifyDelete(ns, key string, value []byte) {
	if s.onDelete == nil {
		return
	}
	plain, err := s.cipher.Open(value)
	if err != nil {
		s.onDelete(ns, key, nil)
		return
	}
	s.onDelete(ns, key, plain)
}

func (s *Store) logWarn(msg string, fields ...zap.Field) {
	if !s.logEnabled {
		return
	}
	logging.Warn(msg, fields...)
}
