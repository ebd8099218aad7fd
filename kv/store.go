package kv

import (
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

// Store is the ordered key/value engine described in §4.1: point reads,
// prefix iteration, and atomic multi-key transactions, all backed by a
// single bbolt database with one bucket per prefix.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the bbolt database at dataDir/chain.db
// and ensures every prefix bucket exists.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("kv: create data dir: %w", err)
	}
	db, err := bbolt.Open(filepath.Join(dataDir, "chain.db"), 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("kv: open db: %w", err)
	}
	s := &Store{db: db}
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: create buckets: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Get performs a point read of key within bucket. Returns (nil, false) if
// absent.
func (s *Store) Get(bucket, key []byte) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("kv: no such bucket %q", bucket)
		}
		if v := b.Get(key); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, value != nil, nil
}

// CursorForward iterates key/value pairs within bucket whose key has the
// given prefix, starting at startSuffix (or the beginning of the prefix
// range if nil), in ascending key order. fn returning false stops iteration.
func (s *Store) CursorForward(bucket, prefix, startSuffix []byte, fn func(key, value []byte) bool) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("kv: no such bucket %q", bucket)
		}
		c := b.Cursor()
		start := append(append([]byte(nil), prefix...), startSuffix...)
		for k, v := c.Seek(start); k != nil; k, v = c.Next() {
			if !hasPrefix(k, prefix) {
				break
			}
			if !fn(k, v) {
				break
			}
		}
		return nil
	})
}

// CursorReverse iterates key/value pairs within bucket whose key has the
// given prefix, in descending key order, optionally starting at or before
// startSuffix.
func (s *Store) CursorReverse(bucket, prefix, startSuffix []byte, fn func(key, value []byte) bool) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("kv: no such bucket %q", bucket)
		}
		c := b.Cursor()
		var k, v []byte
		if startSuffix != nil {
			seekKey := append(append([]byte(nil), prefix...), startSuffix...)
			k, v = c.Seek(seekKey)
			if k == nil || !hasPrefix(k, prefix) {
				k, v = c.Last()
			} else if bytesLess(seekKey, k) {
				// Seek landed past startSuffix; step back to the key before it.
				k, v = c.Prev()
			}
		} else {
			k, v = c.Last()
		}
		for ; k != nil; k, v = c.Prev() {
			if !hasPrefix(k, prefix) {
				if bytesLess(k, prefix) {
					break
				}
				continue
			}
			if !fn(k, v) {
				break
			}
		}
		return nil
	})
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

func bytesLess(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// WriteBatch accumulates put/delete operations to apply in a single commit.
// Commit groups every queued operation into one durable bbolt transaction
// (§4.1): either all of them become visible or none do.
type WriteBatch struct {
	ops []func(tx *bbolt.Tx) error
}

func NewWriteBatch() *WriteBatch { return &WriteBatch{} }

// Put queues a write. If mustBeNew is true, Commit fails the whole batch if
// the key already exists (AlreadyExists per §7 is the caller's concern —
// this is the lower-level assertion the chain manager relies on to catch
// index corruption).
func (wb *WriteBatch) Put(bucket, key, value []byte, mustBeNew bool) {
	bucket, key, value = clone(bucket), clone(key), clone(value)
	wb.ops = append(wb.ops, func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("kv: no such bucket %q", bucket)
		}
		if mustBeNew && b.Get(key) != nil {
			return fmt.Errorf("kv: key already exists in bucket %q", bucket)
		}
		return b.Put(key, value)
	})
}

// Delete queues a deletion. If mustExist is true, Commit fails the whole
// batch if the key is absent.
func (wb *WriteBatch) Delete(bucket, key []byte, mustExist bool) {
	bucket, key = clone(bucket), clone(key)
	wb.ops = append(wb.ops, func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("kv: no such bucket %q", bucket)
		}
		if mustExist && b.Get(key) == nil {
			return fmt.Errorf("kv: key not found in bucket %q", bucket)
		}
		return b.Delete(key)
	})
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// Commit applies every queued operation in one bbolt transaction. On error,
// none of the queued operations are visible (bbolt's own WAL/fsync
// discipline supplies the all-or-nothing guarantee required by §4.1/§5).
func (s *Store) Commit(wb *WriteBatch) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, op := range wb.ops {
			if err := op(tx); err != nil {
				return err
			}
		}
		return nil
	})
}
