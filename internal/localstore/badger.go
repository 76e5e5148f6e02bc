package localstore

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v3"
)

// Badger persists documents in an embedded BadgerDB at dir. Badger
// transactions give us the atomic whole-document replacement the
// session and queue records require.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the store at dir.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("localstore: open badger at %q: %w", dir, err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("localstore: get %q: %w", key, err)
	}
	return value, nil
}

func (b *Badger) Put(key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("localstore: put %q: %w", key, err)
	}
	return nil
}

func (b *Badger) Delete(key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("localstore: delete %q: %w", key, err)
	}
	return nil
}

func (b *Badger) Close() error { return b.db.Close() }
