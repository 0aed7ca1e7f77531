package storage

import (
	"bytes"
	"io"
	"sync"

	"gitlab.com/shardnet/core/core"
)

// MemoryAdapter is an in-memory Adapter, used by unit tests.
type MemoryAdapter struct {
	mu     sync.RWMutex
	items  map[string]*Item
	shards map[string][]byte
}

// NewMemoryAdapter builds an empty MemoryAdapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		items:  make(map[string]*Item),
		shards: make(map[string][]byte),
	}
}

// Open is a no-op: there are no external resources to acquire.
func (a *MemoryAdapter) Open() error { return nil }

// Close is a no-op.
func (a *MemoryAdapter) Close() error { return nil }

func (a *MemoryAdapter) Get(key string) (*Item, Stream, error) {
	if err := validateKey(key); err != nil {
		return nil, Stream{}, err
	}
	a.mu.RLock()
	item, ok := a.items[key]
	if !ok {
		a.mu.RUnlock()
		return nil, Stream{}, core.NewError(core.KindNotFound, "no item for key %s", key)
	}
	shardKey := item.ShardKey
	existing, hasShard := a.shards[shardKey]
	a.mu.RUnlock()

	if hasShard {
		return item, Stream{Reader: io.NopCloser(bytes.NewReader(existing))}, nil
	}
	return item, Stream{Writer: &memoryShardWriter{adapter: a, shardKey: shardKey}}, nil
}

func (a *MemoryAdapter) Peek(key string) (*Item, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	item, ok := a.items[key]
	if !ok {
		return nil, core.NewError(core.KindNotFound, "no item for key %s", key)
	}
	return item, nil
}

func (a *MemoryAdapter) Put(key string, item *Item) error {
	if err := validateKey(key); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items[key] = item
	return nil
}

func (a *MemoryAdapter) Del(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	item, ok := a.items[key]
	if !ok {
		return core.NewError(core.KindNotFound, "no item for key %s", key)
	}
	delete(a.items, key)
	delete(a.shards, item.ShardKey)
	return nil
}

func (a *MemoryAdapter) Size() (uint64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var total uint64
	for k := range a.items {
		total += uint64(len(k))
	}
	for _, b := range a.shards {
		total += uint64(len(b))
	}
	return total, nil
}

func (a *MemoryAdapter) Keys() (<-chan string, <-chan error) {
	keys := make(chan string)
	errs := make(chan error, 1)

	a.mu.RLock()
	snapshot := make([]string, 0, len(a.items))
	for k := range a.items {
		snapshot = append(snapshot, k)
	}
	a.mu.RUnlock()

	go func() {
		defer close(keys)
		defer close(errs)
		for _, k := range snapshot {
			keys <- k
		}
	}()
	return keys, errs
}

// memoryShardWriter buffers written bytes and commits them to the adapter
// on Close, implementing the write-once semantics Get's Stream promises.
type memoryShardWriter struct {
	adapter  *MemoryAdapter
	shardKey string
	buf      bytes.Buffer
	closed   bool
}

func (w *memoryShardWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, core.NewError(core.KindTransport, "write to a closed shard stream")
	}
	return w.buf.Write(p)
}

func (w *memoryShardWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.adapter.mu.Lock()
	defer w.adapter.mu.Unlock()
	w.adapter.shards[w.shardKey] = append([]byte{}, w.buf.Bytes()...)
	return nil
}
