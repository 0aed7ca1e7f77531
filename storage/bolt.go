package storage

import (
	"bytes"
	"encoding/json"
	"io"

	"go.etcd.io/bbolt"

	"gitlab.com/shardnet/core/core"
	"gitlab.com/shardnet/core/persist"
)

var (
	itemsBucket  = []byte("Items")
	shardsBucket = []byte("Shards")
)

// boltMetadata identifies the on-disk schema OpenBoltAdapter checks
// against, so a database built for an unrelated node or an incompatible
// revision is never opened silently.
var boltMetadata = persist.Metadata{Header: "Shard Core Storage Database", Version: "0.1.0"}

// BoltAdapter is a bbolt-backed Adapter: metadata lives in one bucket,
// shard bytes in another, keyed by the item's derived ShardKey.
type BoltAdapter struct {
	db *persist.BoltDatabase
}

// OpenBoltAdapter opens (creating if necessary) a bbolt database at path.
func OpenBoltAdapter(path string) (*BoltAdapter, error) {
	db, err := persist.OpenDatabase(boltMetadata, path)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(itemsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(shardsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltAdapter{db: db}, nil
}

func (a *BoltAdapter) Open() error  { return nil }
func (a *BoltAdapter) Close() error { return a.db.Close() }

func (a *BoltAdapter) Get(key string) (*Item, Stream, error) {
	item, err := a.Peek(key)
	if err != nil {
		return nil, Stream{}, err
	}

	var shardBytes []byte
	var hasShard bool
	err = a.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(shardsBucket).Get([]byte(item.ShardKey))
		if b != nil {
			shardBytes = append([]byte{}, b...)
			hasShard = true
		}
		return nil
	})
	if err != nil {
		return nil, Stream{}, err
	}

	if hasShard {
		return item, Stream{Reader: io.NopCloser(bytes.NewReader(shardBytes))}, nil
	}
	return item, Stream{Writer: &boltShardWriter{adapter: a, shardKey: item.ShardKey}}, nil
}

func (a *BoltAdapter) Peek(key string) (*Item, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	var item Item
	found := false
	err := a.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(itemsBucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &item)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, core.NewError(core.KindNotFound, "no item for key %s", key)
	}
	return &item, nil
}

func (a *BoltAdapter) Put(key string, item *Item) error {
	if err := validateKey(key); err != nil {
		return err
	}
	b, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return a.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(itemsBucket).Put([]byte(key), b)
	})
}

func (a *BoltAdapter) Del(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	item, err := a.Peek(key)
	if err != nil {
		return err
	}
	return a.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(itemsBucket).Delete([]byte(key)); err != nil {
			return err
		}
		return tx.Bucket(shardsBucket).Delete([]byte(item.ShardKey))
	})
}

// Size reports the live size of the database file as seen by a read
// transaction. db.Stats().TxStats.PageCount is a cumulative counter summed
// over every committed transaction since the database was opened - it never
// decreases, so it would latch checkCapacity's locked state permanently the
// first time the running total crossed maxCapacity and never let it clear
// on Del. tx.Size() reflects the file's current size instead.
func (a *BoltAdapter) Size() (uint64, error) {
	var size int64
	err := a.db.View(func(tx *bbolt.Tx) error {
		size = tx.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(size), nil
}

func (a *BoltAdapter) Keys() (<-chan string, <-chan error) {
	keys := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(keys)
		defer close(errs)
		err := a.db.View(func(tx *bbolt.Tx) error {
			return tx.Bucket(itemsBucket).ForEach(func(k, v []byte) error {
				keys <- string(k)
				return nil
			})
		})
		if err != nil {
			errs <- err
		}
	}()
	return keys, errs
}

type boltShardWriter struct {
	adapter  *BoltAdapter
	shardKey string
	buf      bytes.Buffer
	closed   bool
}

func (w *boltShardWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, core.NewError(core.KindTransport, "write to a closed shard stream")
	}
	return w.buf.Write(p)
}

func (w *boltShardWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.adapter.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(shardsBucket).Put([]byte(w.shardKey), w.buf.Bytes())
	})
}
