package logs

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketEvents = []byte("events")

// Query defines filters for retrieving journal entries.
type Query struct {
	Level    string     // filter by log level (empty = all)
	Since    *time.Time // entries after this time
	Contains string     // message/details substring
	Limit    int        // maximum entries to return (0 = no limit)
}

// Journal is a persistent, queryable store of manager events backed by
// bbolt. Keys are a monotonic sequence so iteration is insertion order.
type Journal struct {
	db    *bolt.DB
	idSeq uint64
}

// OpenJournal opens (or creates) the journal at the given path.
func OpenJournal(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open event journal: %w", err)
	}

	var lastID uint64
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketEvents)
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketEvents, err)
		}
		if k, _ := b.Cursor().Last(); k != nil {
			lastID = binary.BigEndian.Uint64(k)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	j := &Journal{db: db}
	atomic.StoreUint64(&j.idSeq, lastID)
	return j, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append stores an entry.
func (j *Journal) Append(entry *Entry) error {
	id := atomic.AddUint64(&j.idSeq, 1)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)

	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEvents).Put(key, data)
	})
}

// Find returns entries matching the query in chronological order.
func (j *Journal) Find(q Query) ([]*Entry, error) {
	var out []*Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue // skip unreadable entries
			}
			if !matches(&e, q) {
				continue
			}
			out = append(out, &e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out, nil
}

// Clear deletes all journal entries.
func (j *Journal) Clear() error {
	return j.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketEvents); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketEvents)
		return err
	})
}

func matches(e *Entry, q Query) bool {
	if q.Level != "" && e.Level != q.Level {
		return false
	}
	if q.Since != nil && e.Timestamp.Before(*q.Since) {
		return false
	}
	if q.Contains != "" &&
		!strings.Contains(e.Message, q.Contains) &&
		!strings.Contains(e.Details, q.Contains) {
		return false
	}
	return true
}
