package registry

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketConverters = []byte("converters")
	bucketAttempts   = []byte("attempts")
)

// Store persists registry entries and per-spec attempt history in a bbolt
// database.
type Store struct {
	db *bolt.DB
}

// Attempt is one recorded verification attempt for a spec, pass or fail.
type Attempt struct {
	Spec   string    `json:"spec"`
	Number int       `json:"number"`
	Status string    `json:"status"`
	Detail string    `json:"detail,omitempty"`
	When   time.Time `json:"when"`
}

// OpenStore opens (or creates) the database at path and ensures the buckets
// exist.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("registry: open store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketConverters); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketAttempts)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: init store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveEntry persists a registered converter. Mirrors the in-memory
// append-only rule: an existing key is never overwritten.
func (s *Store) SaveEntry(e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("registry: encode entry %q: %w", e.StructName, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConverters)
		key := []byte(e.StructName)
		if b.Get(key) != nil {
			return fmt.Errorf("registry: converter for %q already persisted", e.StructName)
		}
		return b.Put(key, data)
	})
}

// LoadInto replays all persisted converters into a registry.
func (s *Store) LoadInto(r *Registry) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConverters).ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("registry: decode entry: %w", err)
			}
			return r.Register(&e)
		})
	})
}

// RecordAttempt appends one attempt to the spec's history, keyed by a
// monotonic sequence inside a per-spec sub-bucket.
func (s *Store) RecordAttempt(a *Attempt) error {
	if a.When.IsZero() {
		a.When = time.Now()
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("registry: encode attempt: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		parent := tx.Bucket(bucketAttempts)
		b, err := parent.CreateBucketIfNotExists([]byte(a.Spec))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
}

// Attempts returns the recorded history for one spec, oldest first.
func (s *Store) Attempts(specName string) ([]*Attempt, error) {
	var out []*Attempt
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttempts).Bucket([]byte(specName))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var a Attempt
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("registry: decode attempt: %w", err)
			}
			out = append(out, &a)
			return nil
		})
	})
	return out, err
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
