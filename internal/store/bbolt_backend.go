package store

import (
	"bytes"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// BoltBackend is the default, durable Backend implementation. Each named
// tree maps onto a top-level bbolt bucket of the same name, mirroring the
// named-tree contract.
type BoltBackend struct {
	db   *bolt.DB
	path string
}

// OpenBolt opens (creating if absent) a bbolt database file at path.
func OpenBolt(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("open bbolt db %s: %w", path, err)
	}
	return &BoltBackend{db: db, path: path}, nil
}

func (b *BoltBackend) Path() string { return b.path }

func (b *BoltBackend) Close() error { return b.db.Close() }

func (b *BoltBackend) OpenTree(name string) (Tree, error) {
	err := b.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open tree %s: %w", name, err)
	}
	return &boltTree{db: b.db, name: []byte(name)}, nil
}

type boltTree struct {
	db   *bolt.DB
	name []byte
}

func (t *boltTree) Get(key []byte) ([]byte, error) {
	var out []byte
	err := t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(t.name)
		v := b.Get(key)
		if v == nil {
			return ErrKeyNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *boltTree) Put(key, value []byte) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(t.name).Put(key, value)
	})
}

func (t *boltTree) Delete(key []byte) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(t.name).Delete(key)
	})
}

func (t *boltTree) DeleteRange(prefix []byte) (int, error) {
	removed := 0
	err := t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(t.name)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func (t *boltTree) ForEach(fn func(key, value []byte) error) error {
	return t.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(t.name).ForEach(fn)
	})
}

func (t *boltTree) Len() (int, error) {
	n := 0
	err := t.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(t.name).Stats().KeyN
		return nil
	})
	return n, err
}
