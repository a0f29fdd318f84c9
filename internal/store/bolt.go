package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"upsbox/internal/device"
)

var (
	bucketSettings = []byte("settings")
	bucketChanges  = []byte("changes")

	keyDeviceName = []byte("device_name")
	keyNetwork    = []byte("network")
	keyBroker     = []byte("broker")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketSettings, bucketChanges} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) SaveDeviceName(name string) error {
	return s.put(keyDeviceName, name)
}

func (s *BoltStore) DeviceName() (string, error) {
	var name string
	err := s.get(keyDeviceName, &name)
	return name, err
}

func (s *BoltStore) SaveNetwork(ns device.NetworkSetting) error {
	return s.put(keyNetwork, ns)
}

func (s *BoltStore) Network() (device.NetworkSetting, error) {
	var ns device.NetworkSetting
	err := s.get(keyNetwork, &ns)
	return ns, err
}

func (s *BoltStore) SaveBroker(b device.Broker) error {
	return s.put(keyBroker, b)
}

func (s *BoltStore) Broker() (device.Broker, error) {
	var b device.Broker
	err := s.get(keyBroker, &b)
	return b, err
}

func (s *BoltStore) AppendChange(c Change) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChanges)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketChanges)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		c.Seq = seq
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
}

func (s *BoltStore) Changes(limit int) ([]Change, error) {
	var changes []Change
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChanges)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && (limit <= 0 || len(changes) < limit); k, v = c.Prev() {
			var ch Change
			if err := json.Unmarshal(v, &ch); err != nil {
				return err
			}
			changes = append(changes, ch)
		}
		return nil
	})
	return changes, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) put(key []byte, v any) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSettings)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSettings)
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

func (s *BoltStore) get(key []byte, v any) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSettings)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSettings)
		}
		data := b.Get(key)
		if data == nil {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return json.Unmarshal(data, v)
	})
}

// seqKey encodes a sequence number big-endian so cursor order is numeric.
func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
