package persist

import (
	"go.etcd.io/bbolt"
)

var metadataBucket = []byte("PersistMetadata")

var (
	metadataHeaderKey  = []byte("Header")
	metadataVersionKey = []byte("Version")
)

// BoltDatabase wraps a bbolt database with the Metadata header/version
// contract every persisted file in this module honours.
type BoltDatabase struct {
	*bbolt.DB
	meta     Metadata
	filename string
}

// OpenDatabase opens (creating if necessary) a bbolt database at filename,
// and checks its stored Metadata against meta - writing meta if the
// database is new.
func OpenDatabase(meta Metadata, filename string) (*BoltDatabase, error) {
	db, err := bbolt.Open(filename, 0600, nil)
	if err != nil {
		return nil, err
	}
	bdb := &BoltDatabase{DB: db, meta: meta, filename: filename}

	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(metadataBucket)
		if err != nil {
			return err
		}
		if b.Get(metadataHeaderKey) == nil {
			if err := b.Put(metadataHeaderKey, []byte(meta.Header)); err != nil {
				return err
			}
			return b.Put(metadataVersionKey, []byte(meta.Version))
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := bdb.checkMetadata(meta); err != nil {
		db.Close()
		return nil, err
	}
	return bdb, nil
}

// checkMetadata verifies that the database's stored Metadata matches want.
func (db *BoltDatabase) checkMetadata(want Metadata) error {
	if db.DB == nil {
		return ErrDatabaseNotOpen
	}
	return db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(metadataBucket)
		if b == nil {
			return ErrBadHeader
		}
		if string(b.Get(metadataHeaderKey)) != want.Header {
			return ErrBadHeader
		}
		if string(b.Get(metadataVersionKey)) != want.Version {
			return ErrBadVersion
		}
		return nil
	})
}

// ErrDatabaseNotOpen is returned by operations attempted on a database
// that has already been closed.
var ErrDatabaseNotOpen = errorString("persist: database is not open")
