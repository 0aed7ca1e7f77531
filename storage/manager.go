package storage

import (
	"sync"
	"time"

	"gitlab.com/NebulousLabs/demotemutex"
	"gitlab.com/NebulousLabs/threadgroup"

	"gitlab.com/shardnet/core/core"
)

// DefaultCleanInterval is how often the reaper sweeps for expired or
// incomplete items when the caller does not override it.
const DefaultCleanInterval = 10 * time.Minute

// Manager wraps an Adapter with merge-on-save semantics, capacity
// accounting, and a periodic reaper.
type Manager struct {
	adapter Adapter
	deps    core.Dependencies

	maxCapacity   uint64
	cleanInterval time.Duration

	mu       demotemutex.DemoteMutex
	locked   bool
	keyLocks keyedMutex

	tg threadgroup.ThreadGroup

	onLocked   func()
	onUnlocked func()
}

// NewManager wraps adapter with a capacity ceiling of maxCapacity bytes
// (0 disables the ceiling) and starts the reaper on cleanInterval.
func NewManager(adapter Adapter, maxCapacity uint64, cleanInterval time.Duration, deps core.Dependencies) (*Manager, error) {
	if cleanInterval <= 0 {
		cleanInterval = DefaultCleanInterval
	}
	if deps == nil {
		deps = core.ProdDependencies{}
	}
	if err := adapter.Open(); err != nil {
		return nil, err
	}
	m := &Manager{
		adapter:       adapter,
		deps:          deps,
		maxCapacity:   maxCapacity,
		cleanInterval: cleanInterval,
		keyLocks:      newKeyedMutex(),
	}
	if err := m.checkCapacity(); err != nil {
		return nil, err
	}
	if err := m.tg.Launch(m.reapLoop); err != nil {
		return nil, err
	}
	return m, nil
}

// OnCapacityLocked registers a callback fired when the manager transitions
// into the capacity-reached state.
func (m *Manager) OnCapacityLocked(fn func()) { m.onLocked = fn }

// OnCapacityUnlocked registers a callback fired when the manager
// transitions out of the capacity-reached state.
func (m *Manager) OnCapacityUnlocked(fn func()) { m.onUnlocked = fn }

// Close stops the reaper and closes the underlying adapter.
func (m *Manager) Close() error {
	if err := m.tg.Stop(); err != nil {
		return err
	}
	return m.adapter.Close()
}

// Save merges item into whatever is already stored for item.Hash, then
// persists the merged result. It fails immediately, before any I/O, if the
// manager is at capacity.
func (m *Manager) Save(item *Item) error {
	if err := m.tg.Add(); err != nil {
		return core.Wrap(core.KindTransport, err, "manager is shutting down")
	}
	defer m.tg.Done()

	m.mu.RLock()
	atCapacity := m.locked
	m.mu.RUnlock()
	if atCapacity {
		return core.NewError(core.KindCapacity, "storage capacity reached")
	}

	unlock := m.keyLocks.Lock(item.Hash)
	defer unlock()

	existing, err := m.adapter.Peek(item.Hash)
	var merged *Item
	if err == nil {
		merged = mergeItems(existing, item)
	} else if core.IsKind(err, core.KindNotFound) {
		merged = item
	} else {
		return err
	}
	merged.Modified = nowMillis()

	if err := m.adapter.Put(item.Hash, merged); err != nil {
		return err
	}
	return m.checkCapacity()
}

// Load fetches the item and shard stream for hash, bypassing the capacity
// gate - reads are always allowed, even while locked.
func (m *Manager) Load(hash string) (*Item, Stream, error) {
	return m.adapter.Get(hash)
}

// Peek fetches item metadata only.
func (m *Manager) Peek(hash string) (*Item, error) {
	return m.adapter.Peek(hash)
}

// mergeItems deep-merges incoming into existing: per-counterparty maps
// merge key by key, scalar fields take incoming's value.
func mergeItems(existing, incoming *Item) *Item {
	merged := NewItem(existing.Hash)
	merged.ShardKey = existing.ShardKey

	for k, v := range existing.Contracts {
		merged.Contracts[k] = v
	}
	for k, v := range incoming.Contracts {
		merged.Contracts[k] = v
	}
	for k, v := range existing.Trees {
		merged.Trees[k] = v
	}
	for k, v := range incoming.Trees {
		merged.Trees[k] = v
	}
	for k, v := range existing.Challenges {
		merged.Challenges[k] = v
	}
	for k, v := range incoming.Challenges {
		merged.Challenges[k] = v
	}
	for k, v := range existing.Meta {
		merged.Meta[k] = v
	}
	for k, v := range incoming.Meta {
		merged.Meta[k] = v
	}
	for k, v := range existing.HDKeys {
		merged.HDKeys[k] = v
	}
	for k, v := range incoming.HDKeys {
		merged.HDKeys[k] = v
	}
	return merged
}

// checkCapacity re-measures adapter.Size and fires the locked/unlocked
// transitions.
func (m *Manager) checkCapacity() error {
	if m.maxCapacity == 0 {
		return nil
	}
	size, err := m.adapter.Size()
	if err != nil {
		return err
	}

	m.mu.Lock()
	was := m.locked
	m.locked = size >= m.maxCapacity
	now := m.locked
	m.mu.Unlock()

	if !was && now && m.onLocked != nil {
		m.onLocked()
	}
	if was && !now && m.onUnlocked != nil {
		m.onUnlocked()
	}
	return nil
}

func (m *Manager) reapLoop() {
	ticker := time.NewTicker(m.cleanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.tg.StopChan():
			return
		case <-ticker.C:
			if m.deps.Disrupt("SkipReap") {
				continue
			}
			m.clean()
		}
	}
}

// clean streams every item, deleting those whose every contract has
// ended or is incomplete. It reads its own snapshot of keys, so an
// overlapping call (or a concurrent Save) is safe to interleave with.
func (m *Manager) clean() {
	keys, errs := m.adapter.Keys()
	now := nowMillis()

	for key := range keys {
		item, err := m.adapter.Peek(key)
		if err != nil {
			continue
		}
		if allContractsExpiredOrIncomplete(item, now) {
			m.adapter.Del(key)
		}
	}
	<-errs
	m.checkCapacity()
}

func allContractsExpiredOrIncomplete(item *Item, nowMs int64) bool {
	if len(item.Contracts) == 0 {
		return true
	}
	for _, c := range item.Contracts {
		if contractComplete(c) && c.StoreEnd() >= nowMs {
			return false
		}
	}
	return true
}

func nowMillis() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// keyedMutex hands out a per-key critical section backed by a single
// sync.Mutex guarding the lock table itself.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() keyedMutex {
	return keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
